package config

import (
	"fmt"
	"net/http"

	"github.com/jmylchreest/jobsift/internal/browser"
	"github.com/jmylchreest/jobsift/internal/fetch"
	"github.com/jmylchreest/jobsift/internal/keywords"
	"github.com/jmylchreest/jobsift/internal/merge"
	"github.com/jmylchreest/jobsift/internal/output"
	"github.com/jmylchreest/jobsift/internal/pagination"
	"github.com/jmylchreest/jobsift/internal/pipeline"
	"github.com/jmylchreest/jobsift/internal/salary"
	"github.com/jmylchreest/jobsift/internal/scoring"
)

// FetchSettings returns the retry and backoff settings.
func (c *Config) FetchSettings() fetch.Config {
	return fetch.Config{
		Timeout:          c.Fetch.Timeout,
		RetryTimeout:     c.Fetch.RetryTimeout,
		BackoffThreshold: c.Fetch.BackoffThreshold,
		BackoffPause:     c.Fetch.BackoffPause,
	}
}

// Transport returns the HTTP transport settings, with site headers layered
// over the global ones.
func (c *Config) Transport(site string) (fetch.TransportConfig, error) {
	maxBody, err := c.MaxBodyBytes()
	if err != nil {
		return fetch.TransportConfig{}, err
	}
	tc := fetch.DefaultTransportConfig()
	if c.Fetch.UserAgent != "" {
		tc.UserAgent = c.Fetch.UserAgent
	}
	for k, v := range c.Fetch.Headers {
		tc.Headers[http.CanonicalHeaderKey(k)] = v
	}
	for k, v := range c.Sites[site].Headers {
		tc.Headers[http.CanonicalHeaderKey(k)] = v
	}
	tc.MaxBodySize = maxBody
	tc.RespectRobots = c.Fetch.RespectRobots
	return tc, nil
}

// Chrome returns the headless browser settings.
func (c *Config) Chrome() browser.ChromeConfig {
	cc := browser.DefaultChromeConfig()
	cc.Headless = c.Browser.Headless
	cc.ExecPath = c.Browser.ExecPath
	if c.Browser.UserAgent != "" {
		cc.UserAgent = c.Browser.UserAgent
	}
	if c.Browser.Timeout > 0 {
		cc.Timeout = c.Browser.Timeout
	}
	return cc
}

// Plan returns the browser interaction for a site.
func (c *Config) Plan(site string) browser.Plan {
	page := c.Sites[site].Page
	return browser.Plan{
		PopupSelector:     page.PopupSelector,
		PopupWait:         c.Browser.PopupWait,
		PrePopupScroll:    true,
		PostPopupScroll:   true,
		PostPopupWait:     c.Browser.PostPopupWait,
		LoadMoreSelector:  page.LoadMoreSelector,
		Scroll:            page.Scroll,
		ScrollBeforeClick: page.ScrollBeforeClick,
		FirstActionWait:   c.Browser.FirstActionWait,
		PreActionWait:     c.Browser.PreActionWait,
		PostActionWait:    c.Browser.PostActionWait,
		MaxIterations:     c.Browser.MaxIterations,
	}
}

// Walker returns the page walker of a site. The stop predicate follows
// the configured pagination keys: a next-link selector, an item selector
// or an items path, in that order.
func (c *Config) Walker(site string) pagination.Walker {
	s := c.Sites[site]
	p := s.Pagination
	w := pagination.Walker{
		BaseURL:     s.URL,
		OffsetParam: p.OffsetParam,
		Start:       p.Start,
		Step:        p.Step,
		PageParam:   p.PageParam,
		First:       p.First,
		MaxPages:    p.MaxPages,
		SendPath:    p.SendPath,
	}
	switch {
	case p.NextSelector != "":
		w.Next = pagination.ByNextLink{Selector: p.NextSelector}
	case p.ItemSelector != "":
		w.Next = pagination.ByLength{Selector: p.ItemSelector, FullCounts: p.FullCounts}
	case p.ItemsPath != "":
		w.Next = pagination.ByPayloadLength{ItemsPath: p.ItemsPath, FullCounts: p.FullCounts}
	}
	return w
}

// Engine loads the rule trees and returns the scoring engine.
func (c *Config) Engine() (scoring.Engine, error) {
	e := scoring.Engine{
		DescRatio: c.Scoring.DescRatio,
		Salary: scoring.SalaryModel{
			Baseline:     c.Scoring.Baseline,
			Ratio:        c.Scoring.Ratio,
			DropoffRatio: c.Scoring.DropoffRatio,
			Dropoff:      c.Scoring.Dropoff,
		},
		DesiredLocations:   c.Scoring.DesiredLocations,
		SecondaryLocations: c.Scoring.SecondaryLocations,
	}
	for _, rt := range []struct {
		key  string
		path string
		dst  **scoring.RuleTree
	}{
		{"scoring.rules", c.Scoring.Rules, &e.Rules},
		{"scoring.title_rules", c.Scoring.TitleRules, &e.TitleRules},
		{"scoring.company_rules", c.Scoring.CompanyRules, &e.CompanyRules},
	} {
		if rt.path == "" {
			continue
		}
		tree, err := scoring.LoadRuleTree(c.Path(rt.path))
		if err != nil {
			return scoring.Engine{}, fmt.Errorf("%w: %s: %w", ErrInvalid, rt.key, err)
		}
		*rt.dst = tree
	}
	return e, nil
}

// SalaryParser returns the salary text parser.
func (c *Config) SalaryParser() salary.Parser {
	p := salary.DefaultParser()
	if c.Salary.Payments > 0 {
		p.Payments = c.Salary.Payments
	}
	if len(c.Salary.AnnualKeywords) > 0 {
		p.AnnualKeywords = c.Salary.AnnualKeywords
	}
	if len(c.Salary.MonthlyKeywords) > 0 {
		p.MonthlyKeywords = c.Salary.MonthlyKeywords
	}
	return p
}

// KeywordExtractor returns the extractor for the master keyword list.
func (c *Config) KeywordExtractor() *keywords.Extractor {
	return keywords.New(c.Keywords)
}

// CompilePipeline resolves the configured steps.
func (c *Config) CompilePipeline() (*pipeline.Pipeline, error) {
	p, err := pipeline.Compile(c.Pipeline, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: pipeline: %w", ErrInvalid, err)
	}
	return p, nil
}

// MergeMode returns the validated merge mode.
func (c *Config) MergeMode() merge.Mode {
	m, err := merge.ParseMode(c.Merge.Mode)
	if err != nil {
		return merge.ModeFill
	}
	return m
}

// OutputFormat returns the validated report format.
func (c *Config) OutputFormat() output.Format {
	f, err := output.ParseFormat(c.Output.Format)
	if err != nil {
		return output.FormatJSON
	}
	return f
}

// OutputDir returns the report directory, the snapshot directory when
// unset.
func (c *Config) OutputDir() string {
	if c.Output.Dir != "" {
		return c.Path(c.Output.Dir)
	}
	return c.SnapshotDir()
}

// SnapshotDir returns the resolved snapshot directory.
func (c *Config) SnapshotDir() string {
	return c.Path(c.Snapshot.Dir)
}
