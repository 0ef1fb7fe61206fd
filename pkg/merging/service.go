package merging

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Store is the lead persistence the merge service needs.
type Store interface {
	SelectAll(ctx context.Context, userID string) ([]models.Lead, error)
	GetMany(ctx context.Context, userID string, ids []string) ([]models.Lead, error)
	// MergeInto saves master and deletes removeIDs atomically.
	MergeInto(ctx context.Context, userID string, master models.Lead, removeIDs []string) (*models.Lead, error)
}

type Lineage interface {
	ProjectMerge(ctx context.Context, userID, masterID string, mergedIDs []string) error
}

type Events interface {
	LeadsMerged(ctx context.Context, userID string, event events.LeadsMergedEvent) error
}

// Service finds duplicate groups and applies user-initiated merges.
type Service struct {
	logger  ectologger.Logger
	store   Store
	engine  *matching.Engine
	lineage Lineage
	events  Events
}

// NewService creates a merge service. lineage and events may be nil.
func NewService(logger ectologger.Logger, store Store, engine *matching.Engine, lineage Lineage, emitter Events) *Service {
	return &Service{
		logger:  logger,
		store:   store,
		engine:  engine,
		lineage: lineage,
		events:  emitter,
	}
}

// FindDuplicates scans all of the user's leads for duplicate groups.
func (s *Service) FindDuplicates(ctx context.Context, userID string) ([]models.DuplicateGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Service.FindDuplicates")
	defer span.End()

	if userID == "" {
		return nil, fernerrors.ErrUnauthenticated
	}

	leads, err := s.store.SelectAll(ctx, userID)
	if err != nil {
		return nil, err
	}

	groups := FindDuplicateGroups(s.engine, leads)
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id": userID,
		"leads":   len(leads),
		"groups":  len(groups),
	}).Debug("Computed duplicate groups")
	return groups, nil
}

// MergeGroup merges the leads in ids into masterID, or into the suggested master
// when masterID is empty, and deletes the other members.
func (s *Service) MergeGroup(ctx context.Context, userID string, ids []string, masterID string) (*models.Lead, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Service.MergeGroup")
	defer span.End()

	if userID == "" {
		return nil, fernerrors.ErrUnauthenticated
	}

	ids = unique(ids)
	if len(ids) < 2 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "at least two distinct leads are required to merge")
	}

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id":   userID,
		"lead_ids":  ids,
		"master_id": masterID,
	})

	leads, err := s.store.GetMany(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	if len(leads) != len(ids) {
		return nil, fmt.Errorf("merge %d leads, found %d: %w", len(ids), len(leads), fernerrors.ErrNotFound)
	}

	merged, err := Merge(leads, masterID)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	removeIDs := make([]string, 0, len(ids)-1)
	for _, id := range ids {
		if id != merged.ID {
			removeIDs = append(removeIDs, id)
		}
	}

	saved, err := s.store.MergeInto(ctx, userID, merged, removeIDs)
	if err != nil {
		log.WithError(err).Error("Failed to persist merge")
		return nil, err
	}
	metrics.LeadsMergedTotal.Add(float64(len(removeIDs)))

	if s.lineage != nil {
		if err := s.lineage.ProjectMerge(ctx, userID, saved.ID, removeIDs); err != nil {
			log.WithError(err).Warn("Failed to project merge lineage")
		}
	}
	if s.events != nil {
		if err := s.events.LeadsMerged(ctx, userID, events.LeadsMergedEvent{MasterID: saved.ID, MergedIDs: removeIDs}); err != nil {
			log.WithError(err).Warn("Failed to emit leads.merged event")
		}
	}

	log.WithField("removed", len(removeIDs)).Info("Merged leads")
	return saved, nil
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
