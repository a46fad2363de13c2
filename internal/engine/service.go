// Package engine orchestrates the ranking pipeline: interaction events
// flow through score recomputation and single-listing regrading, and
// administrative operations drive market classification and bucket-wide
// grade recomputes.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/unilist/unilist/internal/grading"
	"github.com/unilist/unilist/internal/listing"
	"github.com/unilist/unilist/internal/market"
	"github.com/unilist/unilist/internal/scoring"
	"github.com/unilist/unilist/internal/tracing"
)

// maxRecomputeRetries bounds version-conflict retries on the score
// update. Conflicts mean another recompute landed first; retrying reads
// the fresh row and recomputes on top of it.
const maxRecomputeRetries = 3

// ScoreResult is the read-path view of one listing's ranking state.
type ScoreResult struct {
	ListingID  string           `json:"listing_id"`
	FinalScore float64          `json:"final_score"`
	Grade      *string          `json:"grade,omitempty"`
	Explain    *scoring.Explain `json:"explain"`
}

// Service wires the weight registry, classifier, aggregator, and grading
// engine behind the operations external collaborators call.
type Service struct {
	repo       listing.Repository
	classifier *market.Classifier
	aggregator *scoring.Aggregator
	grader     *grading.Engine
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates the ranking service. A nil logger uses slog.Default.
func NewService(
	repo listing.Repository,
	classifier *market.Classifier,
	aggregator *scoring.Aggregator,
	grader *grading.Engine,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		classifier: classifier,
		aggregator: aggregator,
		grader:     grader,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock overrides the service clock. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateListing registers a new listing, stamping it with its tenant's
// current market bucket. New listings start at the base score and are
// immediately scored so the new-listing pin takes effect.
func (s *Service) CreateListing(ctx context.Context, l *listing.Listing) error {
	ctx, endSpan := tracing.StartSpan(ctx, "engine.CreateListing")
	var err error
	defer func() { endSpan(err) }()

	if !listing.ValidDurationClass(l.DurationClass) {
		err = fmt.Errorf("invalid duration class %q", l.DurationClass)
		return err
	}

	size, classifyErr := s.classifier.Classify(ctx, l.TenantID)
	if classifyErr != nil {
		err = fmt.Errorf("failed to classify tenant market: %w", classifyErr)
		return err
	}
	l.MarketSize = size

	if err = s.repo.Create(ctx, l); err != nil {
		return err
	}

	if _, recomputeErr := s.RecomputeScore(ctx, l.ID); recomputeErr != nil {
		s.logger.Warn("initial score recompute failed",
			"listing_id", l.ID,
			"error", recomputeErr)
	}

	s.logger.Info("listing created",
		"listing_id", l.ID,
		"tenant_id", l.TenantID,
		"market_size", string(size))
	return nil
}

// DeactivateListing soft-removes a listing, excluding it from all
// scoring and grading.
func (s *Service) DeactivateListing(ctx context.Context, listingID string) error {
	ctx, endSpan := tracing.StartSpan(ctx, "engine.DeactivateListing")
	var err error
	defer func() { endSpan(err) }()

	if err = s.repo.Deactivate(ctx, listingID); err != nil {
		return err
	}
	s.logger.Info("listing deactivated", "listing_id", listingID)
	return nil
}

// RecordInteraction appends one interaction event and recomputes the
// listing's score and grade. A duplicate (listing, actor, kind) event
// returns listing.ErrDuplicateInteraction without mutating anything.
func (s *Service) RecordInteraction(ctx context.Context, listingID, actorID string, kind listing.Kind) error {
	ctx, endSpan := tracing.StartSpan(ctx, "engine.RecordInteraction")
	var err error
	defer func() { endSpan(err) }()

	if !listing.ValidKind(kind) {
		err = fmt.Errorf("invalid interaction kind %q", kind)
		return err
	}

	err = s.repo.AddInteraction(ctx, listing.Interaction{
		ListingID: listingID,
		ActorID:   actorID,
		Kind:      kind,
		CreatedAt: s.now(),
	})
	if err != nil {
		return err
	}

	if err = s.rescoreAndRegrade(ctx, listingID); err != nil {
		return err
	}
	return nil
}

// RemoveInteraction removes one interaction event and recomputes the
// listing's score and grade.
func (s *Service) RemoveInteraction(ctx context.Context, listingID, actorID string, kind listing.Kind) error {
	ctx, endSpan := tracing.StartSpan(ctx, "engine.RemoveInteraction")
	var err error
	defer func() { endSpan(err) }()

	if err = s.repo.RemoveInteraction(ctx, listingID, actorID, kind); err != nil {
		return err
	}

	if err = s.rescoreAndRegrade(ctx, listingID); err != nil {
		return err
	}
	return nil
}

// rescoreAndRegrade runs the event-driven path after an interaction
// change: recompute the score, then regrade the single listing against
// its bucket's cached thresholds.
func (s *Service) rescoreAndRegrade(ctx context.Context, listingID string) error {
	if _, err := s.RecomputeScore(ctx, listingID); err != nil {
		return fmt.Errorf("failed to recompute score: %w", err)
	}
	if _, err := s.grader.RegradeOne(ctx, listingID); err != nil {
		return fmt.Errorf("failed to regrade listing: %w", err)
	}
	return nil
}

// GetScore returns a listing's current score, grade, and the explain
// breakdown recomputed from live inputs.
func (s *Service) GetScore(ctx context.Context, listingID string) (*ScoreResult, error) {
	ctx, endSpan := tracing.StartSpan(ctx, "engine.GetScore")
	var err error
	defer func() { endSpan(err) }()

	l, err := s.repo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}

	input, err := s.buildInput(ctx, l)
	if err != nil {
		return nil, err
	}
	_, explain := s.aggregator.Score(input)

	return &ScoreResult{
		ListingID:  l.ID,
		FinalScore: l.FinalScore,
		Grade:      l.RelativeGrade,
		Explain:    explain,
	}, nil
}

// RecomputeScore recomputes and persists one listing's final score.
// Concurrent recomputes on the same listing are resolved with optimistic
// versioning: a conflict re-reads the row and recomputes, bounded by
// maxRecomputeRetries. Returns the persisted score.
func (s *Service) RecomputeScore(ctx context.Context, listingID string) (float64, error) {
	ctx, endSpan := tracing.StartSpan(ctx, "engine.RecomputeScore")
	var err error
	defer func() { endSpan(err) }()

	for attempt := 0; attempt < maxRecomputeRetries; attempt++ {
		l, getErr := s.repo.GetByID(ctx, listingID)
		if getErr != nil {
			err = getErr
			return 0, err
		}

		input, buildErr := s.buildInput(ctx, l)
		if buildErr != nil {
			err = buildErr
			return 0, err
		}
		score, _ := s.aggregator.Score(input)

		updateErr := s.repo.UpdateScore(ctx, listingID, l.Version, score)
		if updateErr == listing.ErrVersionConflict {
			s.logger.Debug("score update conflicted, retrying",
				"listing_id", listingID,
				"attempt", attempt+1)
			continue
		}
		if updateErr != nil {
			err = updateErr
			return 0, err
		}
		return score, nil
	}

	err = fmt.Errorf("score recompute for %s exhausted %d retries: %w",
		listingID, maxRecomputeRetries, listing.ErrVersionConflict)
	return 0, err
}

// buildInput assembles the aggregator input for one listing: interaction
// aggregates, targeting scope, and the market bucket. A missing scope
// record defaults to single-tenant with neutral factors.
func (s *Service) buildInput(ctx context.Context, l *listing.Listing) (scoring.Input, error) {
	stats, err := s.repo.InteractionStats(ctx, l.ID, s.now())
	if err != nil {
		return scoring.Input{}, fmt.Errorf("failed to load interaction stats: %w", err)
	}

	scopeFactors := scoring.NeutralFactors()
	scope, err := s.repo.GetScope(ctx, l.ID)
	if err == nil {
		scopeFactors = scoring.FactorsFor(scoring.ClassifyScope(len(scope.TenantIDs)))
	} else if err != listing.ErrScopeNotFound {
		return scoring.Input{}, fmt.Errorf("failed to load listing scope: %w", err)
	}

	return scoring.Input{
		Listing:    l,
		Stats:      stats,
		Scope:      scopeFactors,
		MarketSize: l.MarketSize,
		Now:        s.now(),
	}, nil
}

// SetListingScope stores a listing's targeting scope and recomputes its
// score, since scope changes the normalization factors. When the primary
// tenant changed the listing's market bucket is refreshed too.
func (s *Service) SetListingScope(ctx context.Context, listingID string, tenantIDs []string, primaryTenantID string) error {
	ctx, endSpan := tracing.StartSpan(ctx, "engine.SetListingScope")
	var err error
	defer func() { endSpan(err) }()

	if len(tenantIDs) == 0 {
		err = fmt.Errorf("scope requires at least one tenant")
		return err
	}

	err = s.repo.SetScope(ctx, listing.Scope{
		ListingID:       listingID,
		TenantIDs:       tenantIDs,
		PrimaryTenantID: primaryTenantID,
	})
	if err != nil {
		return err
	}

	if primaryTenantID != "" {
		size, classifyErr := s.classifier.Classify(ctx, primaryTenantID)
		if classifyErr != nil {
			s.logger.Warn("failed to classify primary tenant for scope change",
				"listing_id", listingID,
				"tenant_id", primaryTenantID,
				"error", classifyErr)
		} else if updateErr := s.repo.UpdateMarketSize(ctx, listingID, size); updateErr != nil {
			err = updateErr
			return err
		}
	}

	if err = s.rescoreAndRegrade(ctx, listingID); err != nil {
		return err
	}
	return nil
}

// ClassifyMarket returns the market bucket for a tenant.
func (s *Service) ClassifyMarket(ctx context.Context, tenantID string) (market.Size, error) {
	return s.classifier.Classify(ctx, tenantID)
}

// ReclassifyAllMarkets recomputes every tenant's market bucket.
func (s *Service) ReclassifyAllMarkets(ctx context.Context) (*market.ReclassifyReport, error) {
	ctx, endSpan := tracing.StartSpan(ctx, "engine.ReclassifyAllMarkets")
	var err error
	defer func() { endSpan(err) }()

	report, err := s.classifier.ReclassifyAll(ctx)
	return report, err
}

// RecomputeMarketGrades recomputes percentile thresholds and grades for
// one market bucket.
func (s *Service) RecomputeMarketGrades(ctx context.Context, size market.Size) (*grading.Report, error) {
	if !market.ValidSize(size) {
		return nil, fmt.Errorf("invalid market size %q", size)
	}
	return s.grader.RecomputeMarket(ctx, size)
}

// RecomputeAllMarketGrades recomputes grades for every market bucket.
func (s *Service) RecomputeAllMarketGrades(ctx context.Context) *grading.AllReport {
	return s.grader.RecomputeAll(ctx)
}
