package service

import (
	"context"
	"fmt"

	"location-dedupe/internal/match"
	"location-dedupe/internal/merge"
	"location-dedupe/internal/models"
	"location-dedupe/internal/report"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// LocationReader loads the snapshot every detection pass works on.
type LocationReader interface {
	ListLocations(ctx context.Context) ([]models.Location, error)
}

// Merger executes merge plans.
type Merger interface {
	Run(ctx context.Context, plans []merge.Plan) []merge.Outcome
}

// RunOptions controls a dedupe run.
type RunOptions struct {
	// Execute allows merges. Without it the run never writes.
	Execute bool
}

// DedupeService contains the dedupe workflow: detect, report and, only when
// asked to, merge.
type DedupeService struct {
	repo      LocationReader
	engine    *match.Engine
	merger    Merger
	maxPasses int
}

// NewDedupeService creates a new dedupe service. merger may be nil for a
// read-only deployment.
func NewDedupeService(repo LocationReader, engine *match.Engine, merger Merger, maxPasses int) *DedupeService {
	return &DedupeService{
		repo:      repo,
		engine:    engine,
		merger:    merger,
		maxPasses: max(maxPasses, 1),
	}
}

// Analyze produces the dry-run report.
func (s *DedupeService) Analyze(ctx context.Context) (*report.Report, error) {
	return s.Run(ctx, RunOptions{})
}

// Run detects duplicates and renders the report. In execute mode it merges
// every safe group, then reloads and detects again until a pass merges
// nothing or the pass limit is hit. Records whose merge failed are left out of
// later passes. Only a failure to read the initial snapshot is returned as an
// error.
func (s *DedupeService) Run(ctx context.Context, opts RunOptions) (*report.Report, error) {
	runID := uuid.NewString()
	mode := report.DryRun
	if opts.Execute {
		mode = report.Execute
	}
	logger := log.With().Str("run_id", runID).Str("mode", string(mode)).Logger()

	records, err := s.repo.ListLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to read locations: %w", err)
	}

	groups, err := s.engine.Detect(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("service: failed to detect duplicates: %w", err)
	}

	rep, err := report.Build(runID, mode, len(records), groups)
	if err != nil {
		return nil, fmt.Errorf("service: failed to build report: %w", err)
	}
	logger.Info().
		Int("records", len(records)).
		Int("safe_to_merge", rep.Summary.SafeToMerge).
		Int("integrity_issues", rep.Summary.IntegrityIssues).
		Int("collisions", rep.Summary.Collisions).
		Msg("detection complete")

	if !opts.Execute {
		return rep, nil
	}
	if s.merger == nil {
		return nil, fmt.Errorf("service: execute requested but no merger is configured")
	}

	excluded := make(map[string]bool)
	fresh := rep.SafeToMerge
	for pass := 1; ; pass++ {
		var plans []merge.Plan
		for i := range fresh {
			plans = append(plans, fresh[i].Plans()...)
		}
		if len(plans) == 0 {
			break
		}

		outcomes := s.merger.Run(ctx, plans)
		rep.AddOutcomes(outcomes)

		merged := 0
		for _, o := range outcomes {
			if o.Err != nil {
				excluded[o.Plan.Survivor.ID] = true
				excluded[o.Plan.Loser.ID] = true
				continue
			}
			merged++
		}
		logger.Info().Int("pass", pass).Int("merged", merged).Int("failed", len(outcomes)-merged).Msg("pass complete")

		if merged == 0 || pass >= s.maxPasses {
			break
		}
		if err := ctx.Err(); err != nil {
			logger.Warn().Err(err).Msg("run cancelled between passes")
			break
		}

		records, err = s.repo.ListLocations(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("cannot reload locations, stopping after this pass")
			break
		}
		groups, err = s.engine.Detect(ctx, without(records, excluded))
		if err != nil {
			logger.Error().Err(err).Msg("cannot re-run detection, stopping after this pass")
			break
		}
		if fresh, err = rep.AddPass(groups); err != nil {
			logger.Error().Err(err).Msg("cannot extend report, stopping after this pass")
			break
		}
	}

	logger.Info().
		Int("passes", rep.Passes).
		Int("merged", rep.Summary.Merged).
		Int("failed", rep.Summary.Failed).
		Msg("run complete")
	return rep, nil
}

func without(records []models.Location, excluded map[string]bool) []models.Location {
	if len(excluded) == 0 {
		return records
	}
	kept := make([]models.Location, 0, len(records))
	for _, r := range records {
		if !excluded[r.ID] {
			kept = append(kept, r)
		}
	}
	return kept
}
