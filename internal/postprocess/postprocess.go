package postprocess

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/DataNerdsMX/fuel-prices-mx/internal/config"
	"github.com/DataNerdsMX/fuel-prices-mx/internal/model"
)

// Engine adds derived attributes to events. Rules never touch the record fields.
type Engine struct {
	kw   []keywordRule
	regs []compiledRegex
	maps []mapRule
}

type keywordRule struct {
	words  []string
	labels map[string]string
}

type compiledRegex struct {
	field  string
	re     *regexp.Regexp
	labels map[string]string
}

type mapRule struct {
	field   string
	outKey  string
	mapping map[string]string
}

// New compiles the rules; an invalid expression is a configuration error.
func New(cfg config.PostProcessConfig) (*Engine, error) {
	eng := &Engine{}
	for _, kr := range cfg.Keywords {
		words := make([]string, 0, len(kr.When))
		for _, w := range kr.When {
			if s := strings.TrimSpace(w); s != "" {
				words = append(words, strings.ToLower(s))
			}
		}
		if len(words) == 0 {
			continue
		}
		eng.kw = append(eng.kw, keywordRule{words: words, labels: kr.Labels})
	}
	for _, r := range cfg.Regex {
		if strings.TrimSpace(r.Field) == "" || strings.TrimSpace(r.Expr) == "" {
			continue
		}
		re, err := regexp.Compile(r.Expr)
		if err != nil {
			return nil, fmt.Errorf("postprocess regex %q: %w", r.Expr, err)
		}
		eng.regs = append(eng.regs, compiledRegex{field: strings.ToLower(r.Field), re: re, labels: r.Labels})
	}
	for _, mr := range cfg.Maps {
		if strings.TrimSpace(mr.Field) == "" || len(mr.Mapping) == 0 {
			continue
		}
		out := mr.OutKey
		if out == "" {
			out = mr.Field
		}
		eng.maps = append(eng.maps, mapRule{field: strings.ToLower(mr.Field), outKey: out, mapping: mr.Mapping})
	}
	return eng, nil
}

func (e *Engine) Empty() bool { return len(e.kw) == 0 && len(e.regs) == 0 && len(e.maps) == 0 }

// Apply runs keyword, regex, and mapping rules over events and returns a new slice;
// the input is not modified. With no rules the original slice is returned.
func (e *Engine) Apply(events []model.Event) []model.Event {
	if len(events) == 0 || e.Empty() {
		return events
	}
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		attrs := make(map[string]string, len(ev.Attrs)+2)
		for k, v := range ev.Attrs {
			attrs[k] = v
		}

		// 1) Keyword rules: ALL words must appear in brand or station (case-insensitive)
		brandLC := strings.ToLower(ev.Brand)
		stationLC := strings.ToLower(ev.Station)
		for _, kr := range e.kw {
			matched := true
			for _, w := range kr.words {
				if !strings.Contains(brandLC, w) && !strings.Contains(stationLC, w) {
					matched = false
					break
				}
			}
			if matched {
				for k, v := range kr.labels {
					attrs[k] = v
				}
			}
		}

		// 2) Regex rules
		for _, rr := range e.regs {
			if val := ev.Field(rr.field); val != "" && rr.re.MatchString(val) {
				for k, v := range rr.labels {
					attrs[k] = v
				}
			}
		}

		// 3) Map rules
		for _, mr := range e.maps {
			if mapped, ok := mr.mapping[ev.Field(mr.field)]; ok {
				attrs[mr.outKey] = mapped
			}
		}

		if len(attrs) > 0 {
			ev.Attrs = attrs
		}
		out = append(out, ev)
	}
	return out
}
