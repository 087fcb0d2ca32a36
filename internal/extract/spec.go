package extract

import (
	"fmt"
	"sort"
	"strings"
)

// Mapping kinds.
const (
	KindDOM     = "dom"
	KindPayload = "payload"
)

// Spec is the configuration form of a Strategy.
type Spec struct {
	Identity    IdentitySpec  `mapstructure:"identity" yaml:"identity"`
	Mapping     MappingSpec   `mapstructure:"mapping" yaml:"mapping"`
	URLTemplate string        `mapstructure:"url_template" yaml:"url_template,omitempty"`
	Describe    *DescribeSpec `mapstructure:"describe" yaml:"describe,omitempty"`
}

// IdentitySpec selects RegexIdentity (Pattern set) or FieldIdentity.
type IdentitySpec struct {
	Pattern string `mapstructure:"pattern" yaml:"pattern,omitempty"`
	Field   string `mapstructure:"field" yaml:"field,omitempty"`
}

// FieldSpec locates one field: Selector/Attr for DOM mappings, Path for
// payload mappings.
type FieldSpec struct {
	Selector string `mapstructure:"selector" yaml:"selector,omitempty"`
	Attr     string `mapstructure:"attr" yaml:"attr,omitempty"`
	Path     string `mapstructure:"path" yaml:"path,omitempty"`
}

// MappingSpec configures a DOM or payload mapping.
type MappingSpec struct {
	Kind    string               `mapstructure:"kind" yaml:"kind" validate:"omitempty,oneof=dom payload"`
	Items   string               `mapstructure:"items" yaml:"items"`
	Wrapper string               `mapstructure:"wrapper" yaml:"wrapper,omitempty"`
	Script  string               `mapstructure:"script" yaml:"script,omitempty"`
	Fields  map[string]FieldSpec `mapstructure:"fields" yaml:"fields"`
}

// DescribeSpec configures a Describer. The fetcher is supplied at build
// time.
type DescribeSpec struct {
	URLTemplate string `mapstructure:"url_template" yaml:"url_template,omitempty"`
	Path        string `mapstructure:"path" yaml:"path,omitempty"`
	Script      string `mapstructure:"script" yaml:"script,omitempty"`
	Selector    string `mapstructure:"selector" yaml:"selector,omitempty"`
	Readability bool   `mapstructure:"readability" yaml:"readability,omitempty"`
	OnlyMissing bool   `mapstructure:"only_missing" yaml:"only_missing,omitempty"`
}

// Build creates the strategy described by s. f serves detail fetches and
// may be nil when s has no describe section.
func (s Spec) Build(f BatchFetcher) (*Strategy, error) {
	st := &Strategy{URLTemplate: s.URLTemplate}

	if s.Identity.Pattern != "" {
		id, err := NewRegexIdentity(s.Identity.Pattern, s.Identity.Field)
		if err != nil {
			return nil, err
		}
		st.Identity = id
	} else {
		st.Identity = FieldIdentity{}
		if _, ok := s.Mapping.Fields[FieldID]; !ok {
			return nil, fmt.Errorf("identity: no pattern and no %q field mapped", FieldID)
		}
	}

	switch strings.ToLower(s.Mapping.Kind) {
	case KindDOM, "":
		fields := make(map[string]FieldSelector, len(s.Mapping.Fields))
		for name, fs := range s.Mapping.Fields {
			fields[name] = FieldSelector{Selector: fs.Selector, Attr: fs.Attr}
		}
		m, err := NewDOMMapping(s.Mapping.Items, fields)
		if err != nil {
			return nil, err
		}
		st.Fields = m
	case KindPayload:
		paths := make(map[string]string, len(s.Mapping.Fields))
		for name, fs := range s.Mapping.Fields {
			if fs.Path == "" {
				return nil, fmt.Errorf("payload mapping: field %q has no path", name)
			}
			paths[name] = fs.Path
		}
		m, err := NewPayloadMapping(s.Mapping.Items, s.Mapping.Wrapper, s.Mapping.Script, paths)
		if err != nil {
			return nil, err
		}
		st.Fields = m
	default:
		return nil, fmt.Errorf("unknown mapping kind %q (use dom or payload)", s.Mapping.Kind)
	}

	if d := s.Describe; d != nil {
		if f == nil {
			return nil, fmt.Errorf("describe: no fetcher")
		}
		st.Describer = &Describer{
			Fetcher:     f,
			URLTemplate: d.URLTemplate,
			Path:        d.Path,
			Script:      d.Script,
			Selector:    d.Selector,
			Readability: d.Readability,
			OnlyMissing: d.OnlyMissing,
		}
	}
	return st, nil
}

// Registry maps site names to strategies.
type Registry map[string]*Strategy

// NewRegistry builds a strategy per site. fetchers supplies the detail
// fetcher of each site and may be nil.
func NewRegistry(specs map[string]Spec, fetchers func(site string) BatchFetcher) (Registry, error) {
	reg := make(Registry, len(specs))
	for name, spec := range specs {
		var f BatchFetcher
		if fetchers != nil {
			f = fetchers(name)
		}
		st, err := spec.Build(f)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", name, err)
		}
		reg[name] = st
	}
	return reg, nil
}

// Names returns the registered site names, sorted.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
