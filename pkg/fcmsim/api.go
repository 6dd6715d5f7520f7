package fcmsim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"fcmsim/internal/config"
	"fcmsim/internal/fcm"
	"fcmsim/internal/fuzzy"
	"fcmsim/internal/ga"
	"fcmsim/internal/logging"
	"fcmsim/internal/model"
	"fcmsim/internal/modelio"
	"fcmsim/internal/report"
	"fcmsim/internal/storage"
	"fcmsim/internal/telemetry"
	"fcmsim/internal/whatif"
)

type Options struct {
	// Config is used as is when set; the zero value means config.Defaults().
	Config config.RunConfig
	// Store overrides the backend named by Config.Store.
	Store  storage.Store
	Logger *logging.Logger
	// Registerer receives the what-if metrics. Nil disables metrics.
	Registerer prometheus.Registerer
	Scale      *fuzzy.Scale
}

type Client struct {
	cfg     config.RunConfig
	store   storage.Store
	scale   *fuzzy.Scale
	log     *logging.Logger
	metrics *telemetry.Metrics

	initMu      sync.Mutex
	initialized bool
}

type InferRequest struct {
	Document   fcm.GraphDocument
	Activation map[int]string
	Options    fcm.DocumentOptions
}

type WhatIfRequest struct {
	// Case overrides the configured case name.
	Case string
}

type WhatIfSummary struct {
	RunID        string
	ArtifactsDir string
	Record       model.RunRecord
}

type ExperimentRequest struct {
	ID             string
	Cases          []string
	CrossoverProbs []float64
	Retains        []int
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Case         string
	Target       string
	Runs         int
	BestRun      int
	BestFitness  float64
	ChangedGenes int
}

type FitnessHistoryRequest struct {
	RunID  string
	Latest bool
}

func New(opts Options) (*Client, error) {
	cfg := opts.Config
	if cfg.Target == "" {
		cfg = config.Defaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	scale := opts.Scale
	if scale == nil {
		if cfg.ScaleFile != "" {
			loaded, err := fuzzy.LoadScale(cfg.ScaleFile)
			if err != nil {
				return nil, err
			}
			scale = loaded
		} else {
			scale = fuzzy.DefaultScale()
		}
	}

	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}

	var metrics *telemetry.Metrics
	if opts.Registerer != nil {
		m, err := telemetry.New(opts.Registerer)
		if err != nil {
			return nil, err
		}
		metrics = m
	}

	store := opts.Store
	if store == nil {
		s, err := storage.NewStore(cfg.Store, cfg.DBPath)
		if err != nil {
			return nil, err
		}
		store = s
	}

	return &Client{
		cfg:     cfg,
		store:   store,
		scale:   scale,
		log:     log,
		metrics: metrics,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Scale is the linguistic scale used to encode and decode activation levels.
func (c *Client) Scale() *fuzzy.Scale {
	return c.scale
}

// Config returns the resolved run configuration.
func (c *Client) Config() config.RunConfig {
	return c.cfg
}

// Infer runs one inference loop over a graph document without any search.
func (c *Client) Infer(_ context.Context, req InferRequest) (fcm.DocumentInference, error) {
	opts := req.Options
	if opts.Inference.MaxIterations == 0 {
		opts.Inference.MaxIterations = c.cfg.MaxIterations
	}
	if opts.Inference.Threshold == 0 {
		opts.Inference.Threshold = c.cfg.Threshold
	}
	return fcm.InferDocument(req.Document, req.Activation, c.scale, opts)
}

// WhatIf searches for the initial activation levels that drive the model
// objective to the configured target, then persists the outcome.
func (c *Client) WhatIf(ctx context.Context, req WhatIfRequest) (WhatIfSummary, error) {
	cfg := c.cfg
	if req.Case != "" {
		cfg.Case = req.Case
	}
	return c.whatIf(ctx, cfg)
}

func (c *Client) whatIf(ctx context.Context, cfg config.RunConfig) (WhatIfSummary, error) {
	if err := cfg.RequireCase(); err != nil {
		return WhatIfSummary{}, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return WhatIfSummary{}, err
	}
	target, err := c.scale.ValueOf(cfg.Target)
	if err != nil {
		return WhatIfSummary{}, fmt.Errorf("target: %w", err)
	}

	m, err := modelio.LoadModel(cfg.ModelDir, cfg.Aggregator)
	if err != nil {
		return WhatIfSummary{}, err
	}
	cs, err := modelio.LoadCase(cfg.CaseDir(cfg.Case), m, c.scale)
	if err != nil {
		return WhatIfSummary{}, err
	}
	solver, err := m.BuildSolver(cs, modelio.SolverOptions{
		Excluded:    cfg.Excluded,
		Combiner:    cfg.Combiner,
		MeanWeights: cfg.MeanWeights,
		Inference: fcm.InferenceOptions{
			MaxIterations: cfg.MaxIterations,
			Threshold:     cfg.Threshold,
		},
	})
	if err != nil {
		return WhatIfSummary{}, err
	}
	mutator, err := ga.MutatorByName(cfg.Mutator, c.scale)
	if err != nil {
		return WhatIfSummary{}, err
	}

	runID := uuid.NewString()
	log := c.log.With("run_id", runID, "case", cs.Name)
	log.Info("what-if started",
		"sub_maps", solver.Included(),
		"genes", solver.IndividualSize(),
		"target", cfg.Target,
	)

	orch, err := whatif.New(whatif.Config{
		Population: ga.Config{
			Size:          cfg.PopulationSize,
			CrossoverProb: cfg.CrossoverProb,
			Retain:        cfg.Retain,
			Target:        target,
		},
		Generations: cfg.Generations,
		Runs:        cfg.Runs,
		Seed:        cfg.Seed,
		Workers:     cfg.Workers,
		Evaluator:   solver,
		Mutator:     mutator,
		Baseline:    solver.BaselineGenes(),
		Logger:      log,
		Metrics:     c.metrics,
	})
	if err != nil {
		return WhatIfSummary{}, err
	}
	rep, err := orch.Run(ctx)
	if err != nil {
		return WhatIfSummary{}, err
	}

	record, history := buildRecord(runID, cfg, cs.Name, target, m.GeneLabels(solver.Layout()), rep, mutator.Name(), c.scale)
	if err := c.store.SaveRun(ctx, record); err != nil {
		return WhatIfSummary{}, fmt.Errorf("save run %s: %w", runID, err)
	}
	if err := c.store.SaveFitnessHistory(ctx, runID, history); err != nil {
		return WhatIfSummary{}, fmt.Errorf("save fitness history %s: %w", runID, err)
	}

	summary := WhatIfSummary{RunID: runID, Record: record}
	if cfg.OutputDir != "" {
		dir, err := report.WriteRunArtifacts(cfg.OutputDir, record, history)
		if err != nil {
			return WhatIfSummary{}, err
		}
		if err := report.AppendRunIndex(cfg.OutputDir, report.IndexEntry(record)); err != nil {
			return WhatIfSummary{}, err
		}
		summary.ArtifactsDir = dir
	}
	return summary, nil
}

func buildRecord(runID string, cfg config.RunConfig, caseName string, target float64, labels []string, rep whatif.Report, mutator string, scale *fuzzy.Scale) (model.RunRecord, []model.FitnessHistory) {
	best := rep.Best()
	record := model.RunRecord{
		VersionedRecord: storage.Versioned(),
		ID:              runID,
		CreatedAt:       time.Now().UTC(),
		ModelDir:        cfg.ModelDir,
		Case:            caseName,
		Target:          cfg.Target,
		TargetValue:     target,
		Excluded:        append([]string(nil), cfg.Excluded...),
		Parameters: model.RunParameters{
			PopulationSize: cfg.PopulationSize,
			Generations:    cfg.Generations,
			Runs:           cfg.Runs,
			CrossoverProb:  cfg.CrossoverProb,
			Retain:         cfg.Retain,
			Seed:           cfg.Seed,
			Mutator:        mutator,
			Combiner:       cfg.Combiner,
		},
		GeneLabels:  labels,
		Baseline:    append([]float64(nil), rep.Baseline...),
		BestRun:     rep.BestRun,
		BestFitness: best.BestFitness,
		BestGenes:   append([]float64(nil), best.Best.Genes...),
		BestTerms:   scale.Decode(best.Best.Genes),
		Diff:        append([]int(nil), rep.Diff...),
	}

	history := make([]model.FitnessHistory, 0, len(rep.Runs))
	for _, r := range rep.Runs {
		record.Runs = append(record.Runs, model.RunSummary{
			Run:         r.Run,
			Seed:        r.Seed,
			BestFitness: r.BestFitness,
			Generations: r.Generations,
			Done:        r.Done,
			Genes:       append([]float64(nil), r.Best.Genes...),
			ElapsedMS:   r.Elapsed.Milliseconds(),
		})
		history = append(history, model.FitnessHistory{
			VersionedRecord: storage.Versioned(),
			Run:             r.Run,
			Mean:            append([]float64(nil), r.FitnessHistory...),
			Best:            append([]float64(nil), r.BestHistory...),
		})
	}
	return record, history
}

// Experiment runs a full what-if for every case, crossover probability and
// retain percentage combination. Empty request fields fall back to the
// configured sweep.
func (c *Client) Experiment(ctx context.Context, req ExperimentRequest) (report.Experiment, error) {
	cases := req.Cases
	if len(cases) == 0 {
		cases = c.cfg.Experiment.Cases
	}
	if len(cases) == 0 && c.cfg.Case != "" {
		cases = []string{c.cfg.Case}
	}
	if len(cases) == 0 {
		return report.Experiment{}, fmt.Errorf("%w: experiment requires at least one case", config.ErrInvalid)
	}
	probs := req.CrossoverProbs
	if len(probs) == 0 {
		probs = c.cfg.Experiment.CrossoverProbs
	}
	retains := req.Retains
	if len(retains) == 0 {
		retains = c.cfg.Experiment.Retains
	}
	if len(probs) == 0 || len(retains) == 0 {
		return report.Experiment{}, fmt.Errorf("%w: experiment requires crossover probabilities and retains", config.ErrInvalid)
	}

	exp := report.Experiment{
		ID:           req.ID,
		StartedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if exp.ID == "" {
		exp.ID = uuid.NewString()
	}
	for _, caseName := range cases {
		for _, prob := range probs {
			for _, retain := range retains {
				cfg := c.cfg
				cfg.Case = caseName
				cfg.CrossoverProb = prob
				cfg.Retain = retain
				if err := cfg.Validate(); err != nil {
					return report.Experiment{}, err
				}

				start := time.Now()
				summary, err := c.whatIf(ctx, cfg)
				if err != nil {
					return report.Experiment{}, fmt.Errorf("case %s crossover %.2f retain %d: %w", caseName, prob, retain, err)
				}
				exp.Cells = append(exp.Cells, report.ExperimentCell{
					Case:          caseName,
					CrossoverProb: prob,
					Retain:        retain,
					RunID:         summary.RunID,
					BestFitness:   summary.Record.BestFitness,
					MeanGens:      meanGenerations(summary.Record.Runs),
					ChangedGenes:  len(summary.Record.Diff),
					ElapsedMS:     time.Since(start).Milliseconds(),
				})
			}
		}
	}
	exp.CompletedAtUTC = time.Now().UTC().Format(time.RFC3339Nano)

	if c.cfg.OutputDir != "" {
		if _, err := report.WriteExperiment(c.cfg.OutputDir, exp); err != nil {
			return report.Experiment{}, err
		}
	}
	c.log.Info("experiment complete", "experiment_id", exp.ID, "cells", len(exp.Cells))
	return exp, nil
}

func meanGenerations(runs []model.RunSummary) float64 {
	if len(runs) == 0 {
		return 0
	}
	total := 0
	for _, r := range runs {
		total += r.Generations
	}
	return float64(total) / float64(len(runs))
}

// Runs lists the stored what-if runs newest first. Runs indexed in the
// output directory but missing from the store are merged in.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	entries, err := c.runEntries(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:        e.RunID,
			CreatedAtUTC: e.CreatedAtUTC,
			Case:         e.Case,
			Target:       e.Target,
			Runs:         e.Runs,
			BestRun:      e.BestRun,
			BestFitness:  e.BestFitness,
			ChangedGenes: e.ChangedGenes,
		})
	}
	return out, nil
}

func (c *Client) runEntries(ctx context.Context) ([]report.RunIndexEntry, error) {
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	records, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	entries := make([]report.RunIndexEntry, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		entries = append(entries, report.IndexEntry(rec))
		seen[rec.ID] = struct{}{}
	}
	if c.cfg.OutputDir == "" {
		return entries, nil
	}

	indexed, err := report.ListRunIndex(c.cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	merged := false
	for _, e := range indexed {
		if _, ok := seen[e.RunID]; ok {
			continue
		}
		entries = append(entries, e)
		merged = true
	}
	if merged && len(records) > 0 {
		sort.SliceStable(entries, func(i, j int) bool {
			return createdAt(entries[i]).After(createdAt(entries[j]))
		})
	}
	return entries, nil
}

func createdAt(e report.RunIndexEntry) time.Time {
	t, err := time.Parse(time.RFC3339Nano, e.CreatedAtUTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Run loads a stored what-if record, falling back to its artifacts.
func (c *Client) Run(ctx context.Context, runID string) (model.RunRecord, error) {
	if runID == "" {
		return model.RunRecord{}, errors.New("run id is required")
	}
	if err := c.ensureStore(ctx); err != nil {
		return model.RunRecord{}, err
	}
	record, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if ok {
		return record, nil
	}
	if c.cfg.OutputDir != "" {
		record, ok, err = report.ReadRun(c.cfg.OutputDir, runID)
		if err != nil {
			return model.RunRecord{}, err
		}
		if ok {
			return record, nil
		}
	}
	return model.RunRecord{}, fmt.Errorf("run not found for run id: %s", runID)
}

// FitnessHistory returns the per-run mean and best fitness series.
func (c *Client) FitnessHistory(ctx context.Context, req FitnessHistoryRequest) ([]model.FitnessHistory, error) {
	if req.RunID != "" && req.Latest {
		return nil, errors.New("use either run id or latest")
	}

	runID := req.RunID
	if req.Latest {
		latest, err := c.latestRunID(ctx)
		if err != nil {
			return nil, err
		}
		runID = latest
	}
	if runID == "" {
		return nil, errors.New("fitness history requires run id or latest")
	}

	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok && c.cfg.OutputDir != "" {
		history, ok, err = report.ReadFitnessHistory(c.cfg.OutputDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	return history, nil
}

func (c *Client) latestRunID(ctx context.Context) (string, error) {
	entries, err := c.runEntries(ctx)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func (c *Client) ensureStore(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}
