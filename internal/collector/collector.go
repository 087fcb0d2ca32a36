// Package collector runs a full collection: fetch every configured site,
// extract and score the postings, merge them into history, filter, diff
// against the previous run and commit the snapshots.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/jobsift/internal/config"
	"github.com/jmylchreest/jobsift/internal/diff"
	"github.com/jmylchreest/jobsift/internal/extract"
	"github.com/jmylchreest/jobsift/internal/keywords"
	"github.com/jmylchreest/jobsift/internal/logger"
	"github.com/jmylchreest/jobsift/internal/merge"
	"github.com/jmylchreest/jobsift/internal/output"
	"github.com/jmylchreest/jobsift/internal/pipeline"
	"github.com/jmylchreest/jobsift/internal/posting"
	"github.com/jmylchreest/jobsift/internal/salary"
	"github.com/jmylchreest/jobsift/internal/scoring"
	"github.com/jmylchreest/jobsift/internal/snapshot"
)

// Report kinds written after a run.
const (
	ReportAdded   = "added"
	ReportRemoved = "removed"
)

// Collector holds everything one run needs. Build it with New.
type Collector struct {
	cfg      *config.Config
	engine   scoring.Engine
	tagger   *keywords.Extractor
	salary   salary.Parser
	pipeline *pipeline.Pipeline
	store    *snapshot.Store
	adapters extract.Registry
	sources  map[string]Source
	fetchers map[string]extract.BatchFetcher
	sites    []string
	today    string
	format   output.Format
	outDir   string
	pretty   bool
}

// Option configures a Collector.
type Option func(*Collector)

// WithSource replaces the fetch layer of a site.
func WithSource(site string, src Source) Option {
	return func(c *Collector) {
		c.sources[site] = src
	}
}

// WithFetcher replaces the detail fetcher of a site.
func WithFetcher(site string, f extract.BatchFetcher) Option {
	return func(c *Collector) {
		c.fetchers[site] = f
	}
}

// WithToday sets the collection date, posting.Today() by default.
func WithToday(date string) Option {
	return func(c *Collector) {
		c.today = date
	}
}

// WithFormat overrides the report format.
func WithFormat(f output.Format) Option {
	return func(c *Collector) {
		c.format = f
	}
}

// WithOutputDir overrides the report directory.
func WithOutputDir(dir string) Option {
	return func(c *Collector) {
		c.outDir = dir
	}
}

// New validates cfg and wires a collector from a private copy of it.
// Configuration errors are returned here, before anything is fetched.
func New(cfg *config.Config, opts ...Option) (*Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.Clone()

	engine, err := cfg.Engine()
	if err != nil {
		return nil, err
	}
	p, err := cfg.CompilePipeline()
	if err != nil {
		return nil, err
	}

	c := &Collector{
		cfg:      cfg,
		engine:   engine,
		tagger:   cfg.KeywordExtractor(),
		salary:   cfg.SalaryParser(),
		pipeline: p,
		store:    snapshot.New(cfg.SnapshotDir(), cfg.Snapshot.Pretty),
		sources:  make(map[string]Source),
		fetchers: make(map[string]extract.BatchFetcher),
		sites:    cfg.SiteNames(),
		today:    posting.Today(),
		format:   cfg.OutputFormat(),
		outDir:   cfg.OutputDir(),
		pretty:   cfg.Snapshot.Pretty,
	}
	for _, opt := range opts {
		opt(c)
	}

	specs := make(map[string]extract.Spec, len(c.sites))
	for _, name := range c.sites {
		specs[name] = cfg.Sites[name].Extract
		if _, ok := c.sources[name]; ok {
			continue
		}
		sf, err := buildSite(cfg, name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
		}
		c.sources[name] = sf.source
		if _, ok := c.fetchers[name]; !ok {
			c.fetchers[name] = sf.detail
		}
	}
	c.adapters, err = extract.NewRegistry(specs, func(site string) extract.BatchFetcher {
		return c.fetchers[site]
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	return c, nil
}

// Store returns the snapshot store.
func (c *Collector) Store() *snapshot.Store {
	return c.store
}

// Result summarises a run.
type Result struct {
	RunID     string
	Sites     map[string]extract.Stats
	Failed    []string
	Collected int
	History   int
	Current   int
	Added     []posting.Posting
	Removed   []posting.Posting
	Reports   []string
	Duration  time.Duration
}

// Run performs one full collection. Snapshots are committed only when
// every site has been processed and ctx is still live; a cancelled run
// leaves the previous snapshots untouched.
func (c *Collector) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	res := Result{RunID: uuid.NewString(), Sites: make(map[string]extract.Stats, len(c.sites))}
	log := logger.With("run", res.RunID)
	ctx = logger.NewContext(ctx, log)
	log.Info("run starting", "sites", len(c.sites), "date", c.today)

	history, err := c.store.Load(snapshot.History)
	if err != nil {
		return res, err
	}
	previous, err := c.store.Load(snapshot.Current)
	if err != nil {
		return res, err
	}

	batch := make(posting.Set)
	for _, name := range c.sites {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		set, stats, err := c.collectSite(ctx, log, name)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.Error("site failed", "site", name, "error", err)
			res.Failed = append(res.Failed, name)
			continue
		}
		res.Sites[name] = stats
		for id, p := range set {
			batch[id] = p
		}
	}
	res.Collected = len(batch)

	batch = Enrich(batch, c.salary)

	// Fill only back-fills a sighting that does not move last-seen forward,
	// so scores and tags are computed after the merge.
	merged := merge.Fill(history, batch)
	current := make(posting.Set, len(batch))
	for id := range batch {
		current[id] = merged[id]
	}
	current = c.tagger.Tag(c.engine.Rank(current, true), true)
	maps.Copy(merged, current)

	filtered, err := c.pipeline.Run(current)
	if err != nil {
		return res, fmt.Errorf("pipeline: %w", err)
	}
	res.Added, res.Removed = diff.Diff(filtered, previous)

	if err := ctx.Err(); err != nil {
		log.Warn("run cancelled before commit, snapshots unchanged")
		return res, err
	}
	if err := c.store.Commit(filtered, merged, diff.ToSet(res.Added)); err != nil {
		return res, err
	}
	res.History, res.Current = len(merged), len(filtered)

	for _, r := range []struct {
		kind string
		ps   []posting.Posting
	}{{ReportAdded, res.Added}, {ReportRemoved, res.Removed}} {
		path, err := output.WriteReport(c.outDir, r.kind, c.format, r.ps, output.WithPretty(c.pretty))
		if err != nil {
			return res, fmt.Errorf("report %s: %w", r.kind, err)
		}
		res.Reports = append(res.Reports, path)
	}

	res.Duration = time.Since(start)
	log.Info("run complete",
		"collected", res.Collected,
		"current", res.Current,
		"history", res.History,
		"added", len(res.Added),
		"removed", len(res.Removed),
		"failed", len(res.Failed),
		"duration", res.Duration.Round(time.Millisecond))
	return res, nil
}

// collectSite fetches and extracts one site.
func (c *Collector) collectSite(ctx context.Context, log *slog.Logger, name string) (posting.Set, extract.Stats, error) {
	src, ok := c.sources[name]
	if !ok {
		return nil, extract.Stats{}, errors.New("no source")
	}
	docs, err := src.Documents(ctx)
	if err != nil {
		return nil, extract.Stats{}, err
	}
	set, stats := c.adapters[name].Extract(ctx, docs, extract.Site{Name: name, CollectedOn: c.today})
	log.Info("site collected",
		"site", name,
		"documents", stats.Documents,
		"postings", stats.Postings,
		"skipped", stats.Skipped,
		"described", stats.Described)
	if len(set) == 0 {
		log.Warn("site yielded no postings", "site", name)
	}
	if c.cfg.Snapshot.KeepBatches && len(set) > 0 {
		path, err := c.store.SaveBatch(name, c.today, set)
		if err != nil {
			return nil, stats, err
		}
		log.Debug("batch saved", "site", name, "path", path)
	}
	return set, stats, nil
}

// Rescore re-scores, re-tags and re-filters the stored history with the
// current rules without fetching. The current snapshot becomes the
// postings seen on the latest collection date that pass the pipeline.
func (c *Collector) Rescore(ctx context.Context) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	log := logger.With("run", res.RunID)

	history, err := c.store.Load(snapshot.History)
	if err != nil {
		return res, err
	}
	history = c.engine.Rank(history, true)
	history = c.tagger.Tag(history, true)

	var latest string
	for _, p := range history {
		latest = posting.LaterDate(latest, p.LastCollectedOn)
	}
	current := make(posting.Set)
	for id, p := range history {
		if latest != "" && p.LastCollectedOn == latest {
			current[id] = p
		}
	}
	filtered, err := c.pipeline.Run(current)
	if err != nil {
		return res, fmt.Errorf("pipeline: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if err := c.store.Save(snapshot.Current, filtered); err != nil {
		return res, err
	}
	if err := c.store.Save(snapshot.History, history); err != nil {
		return res, err
	}
	res.History, res.Current = len(history), len(filtered)
	log.Info("rescore complete", "history", res.History, "current", res.Current, "latest", latest)
	return res, nil
}

// Unify merges dated batch files in the given mode. With no paths every
// batch in the store is used, oldest first.
func Unify(store *snapshot.Store, mode merge.Mode, paths ...string) (merge.Result, error) {
	if len(paths) == 0 {
		var err error
		if paths, err = store.Batches(); err != nil {
			return merge.Result{}, err
		}
	}
	paths = slices.Clone(paths)
	snapshot.SortByDate(paths)

	batches := make([]posting.Set, 0, len(paths))
	for _, path := range paths {
		set, err := snapshot.LoadBatch(path)
		if err != nil {
			return merge.Result{}, err
		}
		batches = append(batches, set)
	}
	res, err := merge.Unify(mode, batches...)
	if err != nil {
		return merge.Result{}, err
	}
	logger.Info("batches unified", "files", len(paths), "mode", res.Mode, "postings", res.Len())
	return res, nil
}
