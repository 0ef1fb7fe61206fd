// Package executor writes a partitioned import through the lead store in bounded batches.
package executor

import (
	"context"
	"sync"

	"github.com/Gobusters/ectologger"
	"golang.org/x/sync/errgroup"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	MinBatchSize     = 50
	MaxBatchSize     = 200
	DefaultBatchSize = 100
)

// Store is the lead persistence the executor writes through.
type Store interface {
	// InsertMany upserts leads on (user_id, external_source_id), filling only empty
	// columns of rows that already exist.
	InsertMany(ctx context.Context, leads []models.Lead) ([]models.UpsertedLead, error)
	UpdateOne(ctx context.Context, userID string, update models.LeadUpdate) (*models.Lead, error)
}

type Config struct {
	BatchSize   int
	Parallelism int
}

func DefaultConfig() Config {
	return Config{
		BatchSize:   DefaultBatchSize,
		Parallelism: 8,
	}
}

// Plan is the work produced by the partitioner.
type Plan struct {
	Updates []models.LeadUpdate
	Inserts []models.Lead
}

func (p Plan) Len() int {
	return len(p.Updates) + len(p.Inserts)
}

// Summary counts what the executor wrote. Inserted holds the rows that were created.
type Summary struct {
	NewCount    int
	MergedCount int
	FailedCount int
	Inserted    []models.Lead
}

// Progress receives a percentage in [0,100] after every batch.
type Progress func(percent int)

type Executor struct {
	logger ectologger.Logger
	store  Store
	config Config
}

func New(logger ectologger.Logger, store Store, config Config) *Executor {
	return &Executor{
		logger: logger,
		store:  store,
		config: clampConfig(config),
	}
}

func clampConfig(config Config) Config {
	switch {
	case config.BatchSize == 0:
		config.BatchSize = DefaultBatchSize
	case config.BatchSize < MinBatchSize:
		config.BatchSize = MinBatchSize
	case config.BatchSize > MaxBatchSize:
		config.BatchSize = MaxBatchSize
	}
	if config.Parallelism < 1 {
		config.Parallelism = DefaultConfig().Parallelism
	}
	return config
}

// BatchSize is the effective batch size after clamping.
func (e *Executor) BatchSize() int {
	return e.config.BatchSize
}

// Execute applies updates first and then inserts. Batches run one after another and
// a failed batch does not stop the run. Cancellation is observed between batches;
// a batch that has started runs to completion.
func (e *Executor) Execute(ctx context.Context, userID string, operationID *string, plan Plan, progress Progress) (*Summary, error) {
	ctx, span := tracing.StartSpan(ctx, "executor.Executor.Execute")
	defer span.End()

	if userID == "" {
		return nil, fernerrors.ErrUnauthenticated
	}

	summary := &Summary{}
	tracker := newProgressTracker(plan.Len(), progress)
	if plan.Len() == 0 {
		tracker.finish()
		return summary, nil
	}

	for start := 0; start < len(plan.Updates); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		batch := plan.Updates[start:min(start+e.config.BatchSize, len(plan.Updates))]
		merged, failed := e.updateBatch(context.WithoutCancel(ctx), userID, batch)
		summary.MergedCount += merged
		summary.FailedCount += failed
		tracker.advance(len(batch))
	}

	for start := 0; start < len(plan.Inserts); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		batch := stamp(plan.Inserts[start:min(start+e.config.BatchSize, len(plan.Inserts))], userID, operationID)
		e.insertBatch(context.WithoutCancel(ctx), batch, summary)
		tracker.advance(len(batch))
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id":      userID,
		"new_count":    summary.NewCount,
		"merged_count": summary.MergedCount,
		"failed_count": summary.FailedCount,
	}).Debug("Executed import plan")
	return summary, nil
}

func (e *Executor) updateBatch(ctx context.Context, userID string, batch []models.LeadUpdate) (int, int) {
	var (
		mu     sync.Mutex
		merged int
		failed []models.LeadUpdate
		errs   []error
	)

	var g errgroup.Group
	g.SetLimit(e.config.Parallelism)
	for _, update := range batch {
		g.Go(func() error {
			_, err := e.store.UpdateOne(ctx, userID, update)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, update)
				errs = append(errs, err)
				return nil
			}
			merged++
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		metrics.BatchFailuresTotal.WithLabelValues("update").Inc()
		failedIDs := make([]string, 0, 2)
		for _, update := range failed[:min(2, len(failed))] {
			failedIDs = append(failedIDs, update.ID)
		}
		e.logger.WithContext(ctx).WithError(errs[0]).WithFields(map[string]any{
			"user_id":    userID,
			"batch_size": len(batch),
			"failed":     len(failed),
			"sample":     updateSample(batch),
			"failed_ids": failedIDs,
		}).Error("Update batch had failures")
	}
	return merged, len(failed)
}

func (e *Executor) insertBatch(ctx context.Context, batch []models.Lead, summary *Summary) {
	rows, err := e.store.InsertMany(ctx, batch)
	if err != nil {
		summary.FailedCount += len(batch)
		metrics.BatchFailuresTotal.WithLabelValues("insert").Inc()

		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(batch),
			"sample":     sampleOf(batch),
		}).Error("Insert batch failed")
		return
	}

	for _, row := range rows {
		if row.Inserted {
			summary.NewCount++
			summary.Inserted = append(summary.Inserted, row.Lead)
			continue
		}
		summary.MergedCount++
	}
}

// sampleOf describes the first two records of a failed batch.
func sampleOf(batch []models.Lead) []map[string]string {
	sample := make([]map[string]string, 0, 2)
	for _, lead := range batch[:min(2, len(batch))] {
		sample = append(sample, map[string]string{
			"id":                 lead.ID,
			"company_name":       lead.CompanyName,
			"city":               lead.City,
			"external_source_id": lead.ExternalSourceID,
		})
	}
	return sample
}

// updateSample describes the first two updates of a batch by their merged records.
func updateSample(batch []models.LeadUpdate) []map[string]string {
	leads := make([]models.Lead, 0, 2)
	for _, update := range batch[:min(2, len(batch))] {
		lead := update.Lead
		lead.ID = update.ID
		leads = append(leads, lead)
	}
	return sampleOf(leads)
}

// stamp copies the batch with ownership and provenance set.
func stamp(batch []models.Lead, userID string, operationID *string) []models.Lead {
	out := make([]models.Lead, len(batch))
	for i, lead := range batch {
		lead.UserID = userID
		lead.ImportOperationID = operationID
		out[i] = lead
	}
	return out
}

type progressTracker struct {
	total    int
	done     int
	last     int
	callback Progress
}

func newProgressTracker(total int, callback Progress) *progressTracker {
	return &progressTracker{total: total, last: -1, callback: callback}
}

func (p *progressTracker) advance(n int) {
	p.done += n
	p.report(p.done * 100 / p.total)
}

func (p *progressTracker) finish() {
	p.report(100)
}

func (p *progressTracker) report(percent int) {
	if p.callback == nil || percent < p.last {
		return
	}
	p.last = percent
	p.callback(percent)
}
