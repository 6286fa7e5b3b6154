// Package matching implements duplicate detection over people: blocking,
// pair scoring, and persistence of scored candidates as identity links.
package matching

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/gatherhq/laurel/internal/platform/database"
	"github.com/gatherhq/laurel/internal/platform/tracing"
	"github.com/gatherhq/laurel/internal/repositories/identitylink"
	"github.com/gatherhq/laurel/internal/repositories/person"
	"github.com/gatherhq/laurel/pkg/metrics"
	"github.com/gatherhq/laurel/pkg/models"
)

// Engine runs duplicate scans
type Engine struct {
	logger     ectologger.Logger
	personRepo *person.Repository
	linkRepo   *identitylink.Repository
	scorer     *Scorer
	config     Config
}

// NewEngine creates a new scan engine
func NewEngine(
	logger ectologger.Logger,
	personRepo *person.Repository,
	linkRepo *identitylink.Repository,
	config Config,
) *Engine {
	return &Engine{
		logger:     logger,
		personRepo: personRepo,
		linkRepo:   linkRepo,
		scorer:     NewScorer(),
		config:     config,
	}
}

// Scan runs blocking and scoring over every active person in the tenant and
// persists candidates at or above the score floor as suggested identity
// links. Re-running over unchanged data reproduces the same candidate set;
// pairs with an existing link or an active suppression window are skipped.
func (e *Engine) Scan(ctx context.Context, tenantID string, req *models.ScanRequest, detectedBy string) (*models.ScanResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.Scan")
	defer span.End()

	start := time.Now()
	log := e.logger.WithContext(ctx).WithFields(map[string]any{"tenant_id": tenantID})

	minScore := e.config.MinScore
	limit := e.config.Limit
	if req != nil {
		if req.MinScore != nil {
			minScore = *req.MinScore
		}
		if req.Limit != nil {
			limit = *req.Limit
		}
	}

	people, err := e.personRepo.ListForMatching(ctx, tenantID)
	if err != nil {
		metrics.ScansTotal.WithLabelValues(tenantID, "error").Inc()
		return nil, err
	}

	resp := &models.ScanResponse{PeopleScanned: len(people)}
	if len(people) < 2 {
		resp.DurationMS = time.Since(start).Milliseconds()
		metrics.ScansTotal.WithLabelValues(tenantID, "success").Inc()
		return resp, nil
	}

	excluded, err := e.linkRepo.ExcludedPairKeys(ctx, tenantID)
	if err != nil {
		metrics.ScansTotal.WithLabelValues(tenantID, "error").Inc()
		return nil, err
	}

	byID := make(map[string]*models.MatchProfile, len(people))
	for _, p := range people {
		byID[p.PersonID] = p
	}

	var results []MatchResult
	for _, key := range CandidatePairs(people, e.config.MaxBlockSize) {
		if excluded[key] {
			continue
		}
		resp.PairsCompared++

		ids := strings.SplitN(key, ":", 2)
		match := e.config.ScorePair(e.scorer, byID[ids[0]], byID[ids[1]])
		if len(match.Reasons) == 0 || match.Score < minScore {
			continue
		}
		results = append(results, match)
	}

	// strongest first; CandidatePairs is already deterministic so ties keep
	// their pair-key order
	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	resp.CandidatesFound = len(results)

	for _, match := range results {
		link := &models.IdentityLink{
			TenantID:        tenantID,
			PersonAID:       match.PersonAID,
			PersonBID:       match.PersonBID,
			ConfidenceScore: match.Score,
			MatchReasons:    database.NewJSONB(match.ReasonLabels()),
			DetectedBy:      detectedBy,
		}
		created, err := e.linkRepo.UpsertCandidate(ctx, link)
		if err != nil {
			metrics.ScansTotal.WithLabelValues(tenantID, "error").Inc()
			return nil, err
		}
		if created {
			resp.NewLinks++
		}
	}

	elapsed := time.Since(start)
	resp.DurationMS = elapsed.Milliseconds()
	metrics.ScansTotal.WithLabelValues(tenantID, "success").Inc()
	metrics.ScanDuration.WithLabelValues(tenantID).Observe(elapsed.Seconds())
	metrics.CandidatesFound.WithLabelValues(tenantID).Add(float64(resp.CandidatesFound))

	log.WithFields(map[string]any{
		"people":     resp.PeopleScanned,
		"pairs":      resp.PairsCompared,
		"candidates": resp.CandidatesFound,
		"new_links":  resp.NewLinks,
		"duration":   elapsed,
	}).Info("Duplicate scan completed")

	return resp, nil
}

// FindForPerson scores one person against everyone sharing a blocking key
// with them. Results are not persisted; this backs the ad hoc "possible
// duplicates of this record" lookup.
func (e *Engine) FindForPerson(ctx context.Context, tenantID, personID string, minScore float64, limit int) ([]MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.FindForPerson")
	defer span.End()

	people, err := e.personRepo.ListForMatching(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var target *models.MatchProfile
	for _, p := range people {
		if p.PersonID == personID {
			target = p
			break
		}
	}
	if target == nil {
		return nil, nil
	}

	targetKeys := make(map[string]bool)
	for _, key := range BlockingKeys(target) {
		targetKeys[key] = true
	}

	var results []MatchResult
	for _, candidate := range people {
		if candidate.PersonID == personID {
			continue
		}

		overlap := false
		for _, key := range BlockingKeys(candidate) {
			if targetKeys[key] {
				overlap = true
				break
			}
		}
		if !overlap {
			continue
		}

		match := e.config.ScorePair(e.scorer, target, candidate)
		if len(match.Reasons) == 0 || match.Score < minScore {
			continue
		}
		results = append(results, match)
	}

	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func sortResults(results []MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}
