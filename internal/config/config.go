package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// ErrMissingKeys is returned when the New Relic sink is enabled without credentials.
var ErrMissingKeys = errors.New("missing New Relic keys (NR_ACCOUNT_ID / NR_INSIGHTS_INSERT_KEY)")

type CommonHTTP struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type CREConfig struct {
	LocationsURL    string        `yaml:"locations_url"` // municipalities catalog
	PricesURL       string        `yaml:"prices_url"`    // per-location daily report
	HTTP            CommonHTTP    `yaml:"http"`
	Timezone        string        `yaml:"timezone"`         // FechaAplicacion is local time
	RequestInterval time.Duration `yaml:"request_interval"` // pause between report requests
	MaxRetries      int           `yaml:"max_retries"`
	Backoff         time.Duration `yaml:"backoff"`
	MaxBackoff      time.Duration `yaml:"max_backoff"`
}

type NewRelicConfig struct {
	Disable   bool          `yaml:"disable"`
	AccountID string        `yaml:"account_id"` // env NR_ACCOUNT_ID
	InsertKey string        `yaml:"insert_key"` // env NR_INSIGHTS_INSERT_KEY
	BaseURL   string        `yaml:"base_url"`   // https://insights-collector.newrelic.com
	EventType string        `yaml:"event_type"`
	Gzip      bool          `yaml:"gzip"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type LokiConfig struct {
	URL       string        `yaml:"url"`       // http://loki:3100
	TenantID  string        `yaml:"tenant_id"` // optional multi-tenancy
	Job       string        `yaml:"job"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type VictoriaConfig struct {
	URL       string        `yaml:"url"` // http://victoria-metrics:8428
	Metric    string        `yaml:"metric"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type PostgresConfig struct {
	DSN        string `yaml:"dsn"` // env PG_DSN
	Schema     string `yaml:"schema"`
	MaxConns   int    `yaml:"max_conns"`
	ViaBouncer bool   `yaml:"via_bouncer"` // simple protocol for pgbouncer
}

type UploadConfig struct {
	BatchSize    int           `yaml:"batch_size"`
	PostInterval time.Duration `yaml:"post_interval"`
}

type RedisStoreConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

type S3StoreConfig struct {
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"` // empty for AWS, set for R2/MinIO
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix"`
}

type StoreConfig struct {
	Type  string           `yaml:"type"` // file | redis | s3
	Dir   string           `yaml:"dir"`
	Redis RedisStoreConfig `yaml:"redis"`
	S3    S3StoreConfig    `yaml:"s3"`
}

type KeywordRule struct {
	When   []string          `yaml:"when"`   // substrings (case-insensitive) to match in brand/station
	Labels map[string]string `yaml:"labels"` // attributes to add when matched
}

type RegexRule struct {
	Field  string            `yaml:"field"` // location|state|brand|station|type|product
	Expr   string            `yaml:"expr"`
	Labels map[string]string `yaml:"labels"`
}

type MapRule struct {
	Field   string            `yaml:"field"`   // e.g. state
	Mapping map[string]string `yaml:"mapping"` // e.g. "Jalisco":"Occidente"
	OutKey  string            `yaml:"out_key"` // attribute key to write, e.g. region
}

type PostProcessConfig struct {
	Keywords []KeywordRule `yaml:"keywords"`
	Regex    []RegexRule   `yaml:"regex"`
	Maps     []MapRule     `yaml:"maps"`
}

type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
	Snapshot       bool   `yaml:"snapshot"` // print exposition text at the end of a run
}

type Config struct {
	Debug    bool              `yaml:"debug"`
	CRE      CREConfig         `yaml:"cre"`
	Upload   UploadConfig      `yaml:"upload"`
	NewRelic NewRelicConfig    `yaml:"newrelic"`
	Loki     LokiConfig        `yaml:"loki"`
	Victoria VictoriaConfig    `yaml:"victoria"`
	Postgres PostgresConfig    `yaml:"postgres"`
	Store    StoreConfig       `yaml:"store"`
	Post     PostProcessConfig `yaml:"postprocess"`
	Metrics  MetricsConfig     `yaml:"metrics"`
}

// Load reads the YAML file at path (optional, "" means defaults only), expands ${VAR}
// references, applies environment overrides and defaults, and validates the result.
func Load(path string) (Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &c); err != nil {
			return Config{}, fmt.Errorf("parse yaml: %w", err)
		}
	}
	applyEnvOverrides(&c)
	applyDefaults(&c)
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func applyEnvOverrides(c *Config) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.NewRelic.AccountID, "NR_ACCOUNT_ID")
	set(&c.NewRelic.InsertKey, "NR_INSIGHTS_INSERT_KEY")
	set(&c.Store.Dir, "DATA_DIR")
	set(&c.Postgres.DSN, "PG_DSN")
	set(&c.Store.Redis.Addr, "REDIS_ADDR")
	set(&c.Store.Redis.Password, "REDIS_PASSWORD")
	set(&c.Store.S3.Bucket, "S3_BUCKET")
	set(&c.Store.S3.Endpoint, "S3_ENDPOINT")
	set(&c.Store.S3.AccessKey, "S3_ACCESS_KEY")
	set(&c.Store.S3.SecretKey, "S3_SECRET_KEY")
	set(&c.Metrics.PushgatewayURL, "PUSHGATEWAY_URL")
	set(&c.Loki.URL, "LOKI_URL")
	set(&c.Victoria.URL, "VICTORIA_URL")
	if strings.EqualFold(strings.TrimSpace(os.Getenv("DEBUG")), "true") {
		c.Debug = true
	}
}

func applyDefaults(c *Config) {
	if c.CRE.LocationsURL == "" {
		c.CRE.LocationsURL = "http://api-catalogo.cre.gob.mx/api/utiles/municipios"
	}
	if c.CRE.PricesURL == "" {
		c.CRE.PricesURL = "http://api-reportediario.cre.gob.mx/api/EstacionServicio/Petroliferos"
	}
	if c.CRE.HTTP.Timeout == 0 {
		c.CRE.HTTP.Timeout = 30 * time.Second
	}
	if c.CRE.HTTP.UserAgent == "" {
		c.CRE.HTTP.UserAgent = "DataNerdsMX Gasolinazo 1.0"
	}
	if c.CRE.Timezone == "" {
		c.CRE.Timezone = "America/Mexico_City"
	}
	if c.CRE.RequestInterval == 0 {
		c.CRE.RequestInterval = 300 * time.Millisecond
	}
	if c.CRE.MaxRetries <= 0 {
		c.CRE.MaxRetries = 1
	}
	if c.Upload.BatchSize <= 0 {
		c.Upload.BatchSize = 1000
	}
	if c.Upload.PostInterval == 0 {
		c.Upload.PostInterval = time.Second
	}
	if c.NewRelic.BaseURL == "" {
		c.NewRelic.BaseURL = "https://insights-collector.newrelic.com"
	}
	if c.NewRelic.EventType == "" {
		c.NewRelic.EventType = "FuelPriceSample"
	}
	if c.NewRelic.Timeout == 0 {
		c.NewRelic.Timeout = 30 * time.Second
	}
	if c.Loki.Job == "" {
		c.Loki.Job = "fuel-prices-mx"
	}
	if c.Victoria.Metric == "" {
		c.Victoria.Metric = "fuel_price"
	}
	if c.Postgres.Schema == "" {
		c.Postgres.Schema = "public"
	}
	if c.Postgres.MaxConns <= 0 {
		c.Postgres.MaxConns = 2
	}
	if c.Store.Type == "" {
		c.Store.Type = "file"
	}
	if c.Store.Dir == "" {
		c.Store.Dir = "data"
	}
	if c.Store.Redis.Prefix == "" {
		c.Store.Redis.Prefix = "fuelprices"
	}
	if c.Store.Redis.TTL == 0 {
		c.Store.Redis.TTL = 36 * time.Hour
	}
	if c.Store.S3.Region == "" {
		c.Store.S3.Region = "auto"
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "fuel-prices-mx"
	}
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if !c.NewRelic.Disable && (c.NewRelic.AccountID == "" || c.NewRelic.InsertKey == "") {
		return ErrMissingKeys
	}
	if c.SinkCount() == 0 {
		return errors.New("no sinks configured (need newrelic, loki, victoria or postgres)")
	}
	switch c.Store.Type {
	case "file", "redis", "s3":
	default:
		return fmt.Errorf("unknown store type: %s", c.Store.Type)
	}
	if c.Store.Type == "redis" && c.Store.Redis.Addr == "" {
		return errors.New("store.redis.addr is required")
	}
	if c.Store.Type == "s3" && c.Store.S3.Bucket == "" {
		return errors.New("store.s3.bucket is required")
	}
	if _, err := time.LoadLocation(c.CRE.Timezone); err != nil {
		return fmt.Errorf("cre.timezone: %w", err)
	}
	if !identRe.MatchString(c.Postgres.Schema) {
		return fmt.Errorf("postgres.schema: invalid identifier %q", c.Postgres.Schema)
	}
	return nil
}

func (c Config) SinkCount() int {
	n := 0
	if !c.NewRelic.Disable {
		n++
	}
	for _, u := range []string{c.Loki.URL, c.Victoria.URL, c.Postgres.DSN} {
		if strings.TrimSpace(u) != "" {
			n++
		}
	}
	return n
}
