// Package pipeline applies an ordered list of named filter and transform
// steps to a set of postings.
package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmylchreest/jobsift/internal/logger"
	"github.com/jmylchreest/jobsift/internal/posting"
)

// ErrUnknownStep is a configuration error for a step name with no
// registered function.
var ErrUnknownStep = errors.New("unknown pipeline step")

// Step names a registered function and its parameters.
type Step struct {
	Name   string `mapstructure:"name" yaml:"name" json:"name" validate:"required"`
	Params Params `mapstructure:"params" yaml:"params,omitempty" json:"params,omitempty"`
}

// Func is a step implementation. It must not modify its input.
type Func func(set posting.Set, params Params) (posting.Set, error)

// Registry maps step names to implementations.
type Registry map[string]Func

// DefaultRegistry returns the built-in steps.
func DefaultRegistry() Registry {
	return Registry{
		"select_keywords":                  SelectKeywords,
		"filter_out_keywords":              FilterOutKeywords,
		"filter_on_points":                 FilterOnPoints,
		"filter_on_date":                   FilterOnDate,
		"extra_points_if_missing_keywords": ExtraPointsIfMissingKeywords,
		"select_sources":                   SelectSources,
	}
}

// Names returns the registered step names, sorted.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type compiled struct {
	step Step
	fn   Func
}

// Pipeline is a compiled, ordered list of steps.
type Pipeline struct {
	steps []compiled
}

// Compile resolves every step against reg (DefaultRegistry when nil). An
// unknown name fails here, before any data is touched.
func Compile(steps []Step, reg Registry) (*Pipeline, error) {
	if reg == nil {
		reg = DefaultRegistry()
	}
	p := &Pipeline{steps: make([]compiled, 0, len(steps))}
	for i, s := range steps {
		name := strings.TrimSpace(s.Name)
		fn, ok := reg[name]
		if !ok {
			return nil, fmt.Errorf("%w: step %d %q (known: %s)", ErrUnknownStep, i, s.Name, strings.Join(reg.Names(), ", "))
		}
		p.steps = append(p.steps, compiled{step: Step{Name: name, Params: s.Params}, fn: fn})
	}
	return p, nil
}

// Len returns the number of steps.
func (p *Pipeline) Len() int {
	return len(p.steps)
}

// Run applies the steps in order and returns the final set. The input is
// never modified.
func (p *Pipeline) Run(set posting.Set) (posting.Set, error) {
	out := set
	for i, c := range p.steps {
		before := len(out)
		next, err := c.fn(out, c.step.Params)
		if err != nil {
			return nil, fmt.Errorf("step %d %s: %w", i, c.step.Name, err)
		}
		logger.Debug("pipeline step applied", "step", c.step.Name, "before", before, "after", len(next))
		out = next
	}
	if len(p.steps) == 0 {
		out = set.Clone()
	}
	return out, nil
}

// Reduce compiles steps against the default registry and runs them.
func Reduce(set posting.Set, steps []Step) (posting.Set, error) {
	p, err := Compile(steps, nil)
	if err != nil {
		return nil, err
	}
	return p.Run(set)
}
