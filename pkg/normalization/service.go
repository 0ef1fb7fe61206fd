// Package normalization backfills the stored match keys of a user's leads once per
// key version and records that it ran.
package normalization

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// JobKeyLeadIdentity names the current identity key derivation. Bump it when
// normalizers.IdentityKey or NormalizePhone change so existing leads are rekeyed.
const JobKeyLeadIdentity = "lead-identity-v1"

const defaultPageSize = 500

type LeadStore interface {
	ListPage(ctx context.Context, userID, afterID string, limit int) ([]models.Lead, error)
	UpdateKeys(ctx context.Context, userID, id, identityKey, phoneDigits string) error
}

type JobStore interface {
	// Get returns ErrNotFound when the job never started.
	Get(ctx context.Context, userID, jobKey string) (*models.NormalizationJob, error)
	// Start creates the job or restarts an unfinished one.
	Start(ctx context.Context, userID, jobKey string, at time.Time) (*models.NormalizationJob, error)
	Complete(ctx context.Context, id string, processed int, at time.Time) error
}

type Service struct {
	logger   ectologger.Logger
	leads    LeadStore
	jobs     JobStore
	pageSize int
	now      func() time.Time
}

func NewService(logger ectologger.Logger, leads LeadStore, jobs JobStore, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Service{
		logger:   logger,
		leads:    leads,
		jobs:     jobs,
		pageSize: pageSize,
		now:      time.Now,
	}
}

// EnsureNormalized rekeys the user's leads unless the current job already completed.
func (s *Service) EnsureNormalized(ctx context.Context, userID string) (*models.NormalizationJob, error) {
	ctx, span := tracing.StartSpan(ctx, "normalization.Service.EnsureNormalized")
	defer span.End()

	if userID == "" {
		return nil, fernerrors.ErrUnauthenticated
	}

	job, err := s.jobs.Get(ctx, userID, JobKeyLeadIdentity)
	switch {
	case err == nil && job.IsCompleted():
		return job, nil
	case err != nil && !errors.Is(err, fernerrors.ErrNotFound):
		return nil, err
	}

	job, err = s.jobs.Start(ctx, userID, JobKeyLeadIdentity, s.now().UTC())
	if err != nil {
		return nil, err
	}

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id": userID,
		"job_id":  job.ID,
		"job_key": job.JobKey,
	})

	processed, err := s.rekey(ctx, userID)
	if err != nil {
		log.WithError(err).WithField("processed", processed).Error("Lead normalization failed")
		return nil, err
	}

	completedAt := s.now().UTC()
	if err := s.jobs.Complete(ctx, job.ID, processed, completedAt); err != nil {
		return nil, err
	}
	job.CompletedAt = &completedAt
	job.ProcessedCount = processed

	log.WithField("processed", processed).Info("Normalized lead keys")
	return job, nil
}

func (s *Service) rekey(ctx context.Context, userID string) (int, error) {
	processed := 0
	afterID := ""
	for {
		page, err := s.leads.ListPage(ctx, userID, afterID, s.pageSize)
		if err != nil {
			return processed, err
		}
		for _, lead := range page {
			identityKey := normalizers.IdentityKey(lead.CompanyName, lead.City)
			phoneDigits := normalizers.NormalizePhone(lead.Phone)
			if identityKey == lead.IdentityKey && phoneDigits == lead.PhoneDigits {
				continue
			}
			if err := s.leads.UpdateKeys(ctx, userID, lead.ID, identityKey, phoneDigits); err != nil {
				return processed, err
			}
			processed++
		}
		if len(page) < s.pageSize {
			return processed, nil
		}
		afterID = page[len(page)-1].ID
	}
}
