// Package config loads and validates the jobsift configuration file.
package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/jmylchreest/jobsift/internal/extract"
	"github.com/jmylchreest/jobsift/internal/fetch"
	"github.com/jmylchreest/jobsift/internal/logger"
	"github.com/jmylchreest/jobsift/internal/merge"
	"github.com/jmylchreest/jobsift/internal/output"
	"github.com/jmylchreest/jobsift/internal/pipeline"
)

// ErrInvalid marks configuration errors. They are fatal and reported before
// any snapshot is written.
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix is the prefix of environment overrides, e.g. JOBSIFT_SNAPSHOT_DIR.
const EnvPrefix = "JOBSIFT"

// Config is the full run configuration. Treat it as immutable; use Clone
// before adjusting it for one run.
type Config struct {
	Fetch    FetchConfig           `mapstructure:"fetch"`
	Browser  BrowserConfig         `mapstructure:"browser"`
	Scoring  ScoringConfig         `mapstructure:"scoring"`
	Salary   SalaryConfig          `mapstructure:"salary"`
	Keywords []string              `mapstructure:"keywords"`
	Pipeline []pipeline.Step       `mapstructure:"pipeline" validate:"dive"`
	Merge    MergeConfig           `mapstructure:"merge"`
	Snapshot SnapshotConfig        `mapstructure:"snapshot"`
	Output   OutputConfig          `mapstructure:"output"`
	Sites    map[string]SiteConfig `mapstructure:"sites" validate:"dive"`

	// BaseDir resolves relative file paths. Set to the config file's
	// directory by LoadFile.
	BaseDir string `mapstructure:"-"`
}

// FetchConfig holds HTTP, retry and rate limit settings shared by all sites.
type FetchConfig struct {
	Timeout          time.Duration     `mapstructure:"timeout" validate:"gte=0"`
	RetryTimeout     time.Duration     `mapstructure:"retry_timeout" validate:"gte=0"`
	BackoffThreshold int               `mapstructure:"backoff_threshold" validate:"gte=0"`
	BackoffPause     time.Duration     `mapstructure:"backoff_pause" validate:"gte=0"`
	Delay            time.Duration     `mapstructure:"delay" validate:"gte=0"`
	UserAgent        string            `mapstructure:"user_agent"`
	Headers          map[string]string `mapstructure:"headers"`
	MaxBodySize      string            `mapstructure:"max_body_size"`
	RespectRobots    bool              `mapstructure:"respect_robots"`
}

// BrowserConfig holds headless browser settings and the default waits of
// the page interaction.
type BrowserConfig struct {
	Headless        bool          `mapstructure:"headless"`
	ExecPath        string        `mapstructure:"exec_path"`
	UserAgent       string        `mapstructure:"user_agent"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gte=0"`
	PopupWait       time.Duration `mapstructure:"popup_wait" validate:"gte=0"`
	PostPopupWait   time.Duration `mapstructure:"post_popup_wait" validate:"gte=0"`
	FirstActionWait time.Duration `mapstructure:"first_action_wait" validate:"gte=0"`
	PreActionWait   time.Duration `mapstructure:"pre_action_wait" validate:"gte=0"`
	PostActionWait  time.Duration `mapstructure:"post_action_wait" validate:"gte=0"`
	MaxIterations   int           `mapstructure:"max_iterations" validate:"gte=0"`
}

// ScoringConfig points at the rule tree files and tunes the score formula.
type ScoringConfig struct {
	Rules              string   `mapstructure:"rules"`
	TitleRules         string   `mapstructure:"title_rules"`
	CompanyRules       string   `mapstructure:"company_rules"`
	DescRatio          float64  `mapstructure:"desc_ratio" validate:"gte=0"`
	Baseline           float64  `mapstructure:"baseline" validate:"gte=0"`
	Ratio              float64  `mapstructure:"ratio"`
	DropoffRatio       float64  `mapstructure:"dropoff_ratio" validate:"gte=0"`
	Dropoff            bool     `mapstructure:"dropoff"`
	DesiredLocations   []string `mapstructure:"desired_locations"`
	SecondaryLocations []string `mapstructure:"secondary_locations"`
}

// SalaryConfig tunes salary text parsing.
type SalaryConfig struct {
	Payments        int      `mapstructure:"payments" validate:"gte=0,lte=16"`
	AnnualKeywords  []string `mapstructure:"annual_keywords"`
	MonthlyKeywords []string `mapstructure:"monthly_keywords"`
}

// MergeConfig selects the history merge mode.
type MergeConfig struct {
	Mode string `mapstructure:"mode"`
}

// SnapshotConfig locates the snapshot files.
type SnapshotConfig struct {
	Dir         string `mapstructure:"dir" validate:"required"`
	Pretty      bool   `mapstructure:"pretty"`
	KeepBatches bool   `mapstructure:"keep_batches"`
}

// OutputConfig controls the added/removed report sets.
type OutputConfig struct {
	Dir    string `mapstructure:"dir"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json jsonl yaml yml"`
}

// SiteConfig is one listing site: how to fetch it, how to page through it
// and how to read it.
type SiteConfig struct {
	Disabled   bool              `mapstructure:"disabled"`
	Mode       string            `mapstructure:"mode"`
	URL        string            `mapstructure:"url" validate:"required,url"`
	Headers    map[string]string `mapstructure:"headers"`
	Pagination PaginationConfig  `mapstructure:"pagination"`
	Page       PageConfig        `mapstructure:"page"`
	Extract    extract.Spec      `mapstructure:"extract"`
}

// PaginationConfig builds a pagination.Walker and its stop predicate.
type PaginationConfig struct {
	OffsetParam  string `mapstructure:"offset_param"`
	Start        int    `mapstructure:"start" validate:"gte=0"`
	Step         int    `mapstructure:"step" validate:"gte=0"`
	PageParam    string `mapstructure:"page_param"`
	First        int    `mapstructure:"first" validate:"gte=0"`
	MaxPages     int    `mapstructure:"max_pages" validate:"gte=0"`
	SendPath     bool   `mapstructure:"send_path"`
	ItemSelector string `mapstructure:"item_selector"`
	ItemsPath    string `mapstructure:"items_path"`
	FullCounts   []int  `mapstructure:"full_counts"`
	NextSelector string `mapstructure:"next_selector"`
}

// PageConfig is the browser interaction of a browser-mode site.
type PageConfig struct {
	URLs              []string `mapstructure:"urls" validate:"dive,url"`
	PopupSelector     string   `mapstructure:"popup_selector"`
	LoadMoreSelector  string   `mapstructure:"load_more_selector"`
	Scroll            bool     `mapstructure:"scroll"`
	ScrollBeforeClick bool     `mapstructure:"scroll_before_click"`
}

// Default returns a configuration with every default applied and no
// sites.
func Default() *Config {
	return &Config{
		Fetch: FetchConfig{
			Timeout:          10 * time.Second,
			RetryTimeout:     20 * time.Second,
			BackoffThreshold: 3,
			BackoffPause:     60 * time.Second,
			Delay:            time.Second,
			MaxBodySize:      "10MB",
		},
		Browser: BrowserConfig{
			Headless:        true,
			Timeout:         60 * time.Second,
			PopupWait:       12 * time.Second,
			PostPopupWait:   300 * time.Millisecond,
			FirstActionWait: 2 * time.Second,
			PreActionWait:   550 * time.Millisecond,
			PostActionWait:  550 * time.Millisecond,
			MaxIterations:   100,
		},
		Scoring: ScoringConfig{
			DescRatio:    0.3,
			Baseline:     5000,
			Ratio:        0.0015,
			DropoffRatio: 1.25,
			Dropoff:      true,
		},
		Salary:   SalaryConfig{Payments: 12},
		Merge:    MergeConfig{Mode: string(merge.ModeFill)},
		Snapshot: SnapshotConfig{Dir: "data"},
		Output:   OutputConfig{Format: string(output.FormatJSON)},
	}
}

// SetDefaults registers every scalar default on v so environment
// overrides apply to them.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("fetch.retry_timeout", d.Fetch.RetryTimeout)
	v.SetDefault("fetch.backoff_threshold", d.Fetch.BackoffThreshold)
	v.SetDefault("fetch.backoff_pause", d.Fetch.BackoffPause)
	v.SetDefault("fetch.delay", d.Fetch.Delay)
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.max_body_size", d.Fetch.MaxBodySize)
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("browser.headless", d.Browser.Headless)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.timeout", d.Browser.Timeout)
	v.SetDefault("browser.popup_wait", d.Browser.PopupWait)
	v.SetDefault("browser.post_popup_wait", d.Browser.PostPopupWait)
	v.SetDefault("browser.first_action_wait", d.Browser.FirstActionWait)
	v.SetDefault("browser.pre_action_wait", d.Browser.PreActionWait)
	v.SetDefault("browser.post_action_wait", d.Browser.PostActionWait)
	v.SetDefault("browser.max_iterations", d.Browser.MaxIterations)
	v.SetDefault("scoring.rules", "")
	v.SetDefault("scoring.desc_ratio", d.Scoring.DescRatio)
	v.SetDefault("scoring.baseline", d.Scoring.Baseline)
	v.SetDefault("scoring.ratio", d.Scoring.Ratio)
	v.SetDefault("scoring.dropoff_ratio", d.Scoring.DropoffRatio)
	v.SetDefault("scoring.dropoff", d.Scoring.Dropoff)
	v.SetDefault("salary.payments", d.Salary.Payments)
	v.SetDefault("merge.mode", d.Merge.Mode)
	v.SetDefault("snapshot.dir", d.Snapshot.Dir)
	v.SetDefault("snapshot.pretty", false)
	v.SetDefault("snapshot.keep_batches", false)
	v.SetDefault("output.dir", "")
	v.SetDefault("output.format", d.Output.Format)
}

// NewViper returns a viper instance with defaults and JOBSIFT_ environment
// overrides wired up.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalid, err)
	}
	if file := v.ConfigFileUsed(); file != "" {
		cfg.BaseDir = filepath.Dir(file)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	v := NewViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalid, path, err)
	}
	return Load(v)
}

// Validate checks struct constraints and everything that can be checked
// without touching the network: modes, step names and byte sizes.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s %s", e.Namespace(), formatValidationError(e)))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := c.MaxBodyBytes(); err != nil {
		return err
	}
	if _, err := merge.ParseMode(c.Merge.Mode); err != nil {
		return fmt.Errorf("%w: merge.mode: %v", ErrInvalid, err)
	}
	if _, err := pipeline.Compile(c.Pipeline, nil); err != nil {
		return fmt.Errorf("%w: pipeline: %w", ErrInvalid, err)
	}
	for _, name := range c.SiteNames() {
		site := c.Sites[name]
		mode, err := fetch.ParseMode(site.Mode)
		if err != nil {
			return fmt.Errorf("%w: site %s: %w", ErrInvalid, name, err)
		}
		if mode == fetch.ModeBrowser && site.Page.LoadMoreSelector == "" && !site.Page.Scroll {
			logger.Warn("browser site loads no more results", "site", name)
		}
		if _, err := site.Extract.Build(noFetcher{}); err != nil {
			return fmt.Errorf("%w: site %s: %v", ErrInvalid, name, err)
		}
	}
	return nil
}

// formatValidationError creates a human-readable error message.
func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", e.Param())
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}

// MaxBodyBytes parses Fetch.MaxBodySize ("10MB", "512KiB"). Empty or zero
// means no limit.
func (c *Config) MaxBodyBytes() (int, error) {
	s := strings.TrimSpace(c.Fetch.MaxBodySize)
	if s == "" || s == "0" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: fetch.max_body_size: %v", ErrInvalid, err)
	}
	return int(n), nil
}

// SiteNames returns the enabled sites, sorted.
func (c *Config) SiteNames() []string {
	names := make([]string, 0, len(c.Sites))
	for name, site := range c.Sites {
		if !site.Disabled {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Path resolves a configured file path against BaseDir.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.BaseDir == "" {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Fetch.Headers = maps.Clone(c.Fetch.Headers)
	out.Scoring.DesiredLocations = slices.Clone(c.Scoring.DesiredLocations)
	out.Scoring.SecondaryLocations = slices.Clone(c.Scoring.SecondaryLocations)
	out.Salary.AnnualKeywords = slices.Clone(c.Salary.AnnualKeywords)
	out.Salary.MonthlyKeywords = slices.Clone(c.Salary.MonthlyKeywords)
	out.Keywords = slices.Clone(c.Keywords)
	if c.Pipeline != nil {
		out.Pipeline = make([]pipeline.Step, len(c.Pipeline))
		for i, s := range c.Pipeline {
			out.Pipeline[i] = pipeline.Step{Name: s.Name, Params: cloneParams(s.Params)}
		}
	}
	if c.Sites != nil {
		out.Sites = make(map[string]SiteConfig, len(c.Sites))
		for name, s := range c.Sites {
			out.Sites[name] = s.clone()
		}
	}
	return &out
}

func (s SiteConfig) clone() SiteConfig {
	out := s
	out.Headers = maps.Clone(s.Headers)
	out.Pagination.FullCounts = slices.Clone(s.Pagination.FullCounts)
	out.Page.URLs = slices.Clone(s.Page.URLs)
	out.Extract.Mapping.Fields = maps.Clone(s.Extract.Mapping.Fields)
	if s.Extract.Describe != nil {
		d := *s.Extract.Describe
		out.Extract.Describe = &d
	}
	return out
}

func cloneParams(p pipeline.Params) pipeline.Params {
	if p == nil {
		return nil
	}
	out := make(pipeline.Params, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return slices.Clone(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// noFetcher lets Validate build describers without a network.
type noFetcher struct{}

func (noFetcher) FetchAll(context.Context, []fetch.Target) ([]fetch.Document, fetch.Stats) {
	return nil, fetch.Stats{}
}
