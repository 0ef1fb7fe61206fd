package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/executor"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
)

// memoryLeads mimics the lead repository, including the natural-key upsert.
type memoryLeads struct {
	mu    sync.Mutex
	leads map[string]*models.Lead
	order []string
}

func newMemoryLeads(seed ...models.Lead) *memoryLeads {
	s := &memoryLeads{leads: map[string]*models.Lead{}}
	for _, lead := range seed {
		stored := lead
		s.leads[lead.ID] = &stored
		s.order = append(s.order, lead.ID)
	}
	return s
}

func (s *memoryLeads) SelectAll(_ context.Context, userID string) ([]models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Lead
	for _, id := range s.order {
		if lead, ok := s.leads[id]; ok && lead.UserID == userID {
			out = append(out, *lead)
		}
	}
	return out, nil
}

func (s *memoryLeads) InsertMany(_ context.Context, leads []models.Lead) ([]models.UpsertedLead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]models.UpsertedLead, 0, len(leads))
	for _, lead := range leads {
		if existing := s.byNaturalKey(lead.UserID, lead.ExternalSourceID); existing != nil {
			for _, field := range models.LeadFields {
				if field.Get(existing) == "" {
					field.Set(existing, field.Get(&lead))
				}
			}
			rows = append(rows, models.UpsertedLead{Lead: *existing})
			continue
		}
		stored := lead
		stored.CreatedAt = time.Now()
		stored.UpdatedAt = stored.CreatedAt
		s.leads[stored.ID] = &stored
		s.order = append(s.order, stored.ID)
		rows = append(rows, models.UpsertedLead{Lead: stored, Inserted: true})
	}
	return rows, nil
}

func (s *memoryLeads) byNaturalKey(userID, externalID string) *models.Lead {
	for _, lead := range s.leads {
		if lead.UserID == userID && lead.ExternalSourceID == externalID {
			return lead
		}
	}
	return nil
}

func (s *memoryLeads) UpdateOne(_ context.Context, userID string, update models.LeadUpdate) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[update.ID]
	if !ok || lead.UserID != userID {
		return nil, fernerrors.ErrNotFound
	}
	for column, value := range update.Fields {
		field, _ := models.FindLeadField(column)
		field.Set(lead, value)
	}
	copied := *lead
	return &copied, nil
}

func (s *memoryLeads) all() []models.Lead {
	leads, _ := s.SelectAll(context.Background(), "u1")
	return leads
}

type fakeLedger struct {
	err   error
	calls int
}

func (l *fakeLedger) Create(context.Context, string, models.OperationType, string, int, models.ImportMetadata) (string, error) {
	l.calls++
	if l.err != nil {
		return "", l.err
	}
	return fmt.Sprintf("op-%d", l.calls), nil
}

type recorder struct {
	imports   map[string][]string
	completed []events.ImportCompletedEvent
}

func (r *recorder) ProjectImport(_ context.Context, _, operationID string, leadIDs []string) error {
	if r.imports == nil {
		r.imports = map[string][]string{}
	}
	r.imports[operationID] = leadIDs
	return nil
}

func (r *recorder) ImportCompleted(_ context.Context, _ string, event events.ImportCompletedEvent) error {
	r.completed = append(r.completed, event)
	return nil
}

type busyLocker struct{}

func (busyLocker) WithLock(context.Context, string, time.Duration, func(context.Context) error) error {
	return redis.ErrLockNotAcquired
}

type fixture struct {
	leads    *memoryLeads
	ledger   *fakeLedger
	recorder *recorder
	service  *Service
}

func newFixture(seed ...models.Lead) *fixture {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	leads := newMemoryLeads(seed...)
	ledger := &fakeLedger{}
	rec := &recorder{}
	exec := executor.New(logger, leads, executor.DefaultConfig())

	return &fixture{
		leads:    leads,
		ledger:   ledger,
		recorder: rec,
		service:  NewService(logger, leads, matching.NewEngine(matching.DefaultConfig()), ledger, exec, nil, nil, rec, rec, Config{}),
	}
}

func csvRequest(rows ...map[string]string) Request {
	return Request{
		UserID:        "u1",
		OperationType: models.OperationTypeCSV,
		Filename:      "leads.csv",
		Rows:          rows,
		Defaults:      models.ImportDefaults{Source: "csv"},
	}
}

func TestImport_MergesIntoExistingLead(t *testing.T) {
	f := newFixture(models.Lead{ID: "e1", UserID: "u1", CompanyName: "Acme Plumbing", City: "Tampa", Source: "csv", ExternalSourceID: "x1"})

	result, err := f.service.Import(context.Background(), csvRequest(
		map[string]string{"company_name": "ACME PLUMBING", "city": "tampa", "phone": "555-1111"},
	), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, result.NewCount)
	assert.Equal(t, 1, result.MergedCount)

	leads := f.leads.all()
	require.Len(t, leads, 1)
	assert.Equal(t, "555-1111", leads[0].Phone)
	assert.Equal(t, "Acme Plumbing", leads[0].CompanyName)
}

func TestImport_SkipsDuplicatesWithinBatch(t *testing.T) {
	f := newFixture()
	var progress []int

	result, err := f.service.Import(context.Background(), csvRequest(
		map[string]string{"company_name": "Bright Electric", "city": "Miami"},
		map[string]string{"company_name": "BRIGHT ELECTRIC LLC", "city": "miami"},
		map[string]string{"company_name": "Sunny Pools", "city": "Naples"},
	), func(p int) { progress = append(progress, p) })
	require.NoError(t, err)

	assert.Equal(t, 2, result.NewCount)
	assert.Equal(t, 1, result.SkippedCount)
	assert.Equal(t, "op-1", result.OperationID)
	assert.Len(t, f.leads.all(), 2)
	assert.Equal(t, []int{100}, progress)
}

func TestImport_OverrideLocation(t *testing.T) {
	f := newFixture(models.Lead{ID: "e1", UserID: "u1", CompanyName: "Acme Plumbing", City: "Tampa", State: "FL", Phone: "555-1111", ExternalSourceID: "x1"})
	req := csvRequest(
		map[string]string{"company_name": "Acme Plumbing", "phone": "555-1111"},
		map[string]string{"company_name": "Bright Electric", "city": "Miami", "state": "FL"},
	)
	req.Defaults = models.ImportDefaults{Source: "csv", DefaultCity: "Dallas", DefaultState: "TX", OverrideLocation: true}

	_, err := f.service.Import(context.Background(), req, nil)
	require.NoError(t, err)

	leads := f.leads.all()
	require.Len(t, leads, 2)
	for _, lead := range leads {
		assert.Equal(t, "Dallas", lead.City, lead.CompanyName)
		assert.Equal(t, "TX", lead.State, lead.CompanyName)
	}
}

func TestImport_SecondIdenticalRunIsIdempotent(t *testing.T) {
	f := newFixture()
	req := csvRequest(
		map[string]string{"company_name": "Acme Plumbing", "city": "Tampa", "phone": "555-1111"},
		map[string]string{"company_name": "Bright Electric", "city": "Miami"},
		map[string]string{"company_name": "Sunny Pools", "city": "Naples", "instagram_url": "@sunnypools"},
	)

	first, err := f.service.Import(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, first.NewCount)

	second, err := f.service.Import(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewCount)
	assert.Equal(t, 3, second.MergedCount)
	assert.Len(t, f.leads.all(), 3)
}

func TestImport_TagsLeadsAndPublishes(t *testing.T) {
	f := newFixture()

	result, err := f.service.Import(context.Background(), csvRequest(
		map[string]string{"company_name": "Acme Plumbing", "city": "Tampa"},
		map[string]string{"city": "Tampa"},
	), nil)
	require.NoError(t, err)

	require.Len(t, result.Invalid, 1)
	assert.Equal(t, 2, result.Invalid[0].Row)

	leads := f.leads.all()
	require.Len(t, leads, 1)
	require.NotNil(t, leads[0].ImportOperationID)
	assert.Equal(t, result.OperationID, *leads[0].ImportOperationID)
	assert.Equal(t, "csv", leads[0].Source)

	assert.Equal(t, []string{leads[0].ID}, f.recorder.imports[result.OperationID])
	require.Len(t, f.recorder.completed, 1)
	assert.Equal(t, 1, f.recorder.completed[0].InvalidCount)
	assert.Equal(t, 1, f.recorder.completed[0].NewCount)
}

func TestImport_ContinuesWithoutLedger(t *testing.T) {
	f := newFixture()
	f.ledger.err = errors.New("ledger down")

	result, err := f.service.Import(context.Background(), csvRequest(
		map[string]string{"company_name": "Acme Plumbing", "city": "Tampa"},
	), nil)
	require.NoError(t, err)

	assert.Empty(t, result.OperationID)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "cannot be undone")
	assert.Equal(t, 1, result.NewCount)

	leads := f.leads.all()
	require.Len(t, leads, 1)
	assert.Nil(t, leads[0].ImportOperationID)
	assert.Empty(t, f.recorder.imports)
}

func TestImport_InterruptedRunKeepsCounts(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	leads := newMemoryLeads()
	ledger := &fakeLedger{}
	exec := executor.New(logger, leads, executor.Config{BatchSize: 50, Parallelism: 2})
	service := NewService(logger, leads, matching.NewEngine(matching.DefaultConfig()), ledger, exec, nil, nil, nil, nil, Config{})

	rows := make([]map[string]string, 120)
	for i := range rows {
		rows[i] = map[string]string{"company_name": fmt.Sprintf("Roofer %d", i), "city": "Tampa"}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	result, err := service.Import(ctx, csvRequest(rows...), func(int) { cancel() })

	var incomplete *IncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, retryable(err))

	require.NotNil(t, result)
	assert.Same(t, result, incomplete.Result)
	assert.Equal(t, "op-1", result.OperationID)
	assert.Equal(t, 50, result.NewCount)
	assert.Zero(t, result.FailedCount)
	assert.Len(t, leads.all(), 50)
	assert.Equal(t, 1, ledger.calls)
}

func TestImport_Rejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	req := csvRequest()
	req.UserID = ""
	_, err := f.service.Import(ctx, req, nil)
	assert.ErrorIs(t, err, fernerrors.ErrUnauthenticated)

	req = csvRequest()
	req.OperationType = "ftp"
	_, err = f.service.Import(ctx, req, nil)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))

	req = csvRequest()
	req.Defaults.Source = ""
	_, err = f.service.Import(ctx, req, nil)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))

	req = csvRequest()
	req.Mappings = []models.FieldMapping{{Column: "Name", Field: "nickname"}}
	_, err = f.service.Import(ctx, req, nil)
	var mappingErr *fernerrors.MappingError
	assert.ErrorAs(t, err, &mappingErr)

	assert.Zero(t, f.ledger.calls)
}

func TestImport_SerializedPerUser(t *testing.T) {
	f := newFixture()
	f.service.locker = busyLocker{}

	_, err := f.service.Import(context.Background(), csvRequest(
		map[string]string{"company_name": "Acme Plumbing"},
	), nil)
	assert.ErrorIs(t, err, fernerrors.ErrImportInProgress)
	assert.Empty(t, f.leads.all())
}

type memoryDLQ struct {
	entries []*redis.DLQEntry
}

func (d *memoryDLQ) Add(_ context.Context, entry *redis.DLQEntry) (string, error) {
	d.entries = append(d.entries, entry)
	return fmt.Sprint(len(d.entries)), nil
}

func TestHandleMessage(t *testing.T) {
	f := newFixture()
	body, err := json.Marshal(map[string]any{
		"rows":     []map[string]string{{"company_name": "Acme Plumbing", "city": "Tampa"}},
		"defaults": map[string]any{"source": "maps"},
	})
	require.NoError(t, err)

	err = f.service.HandleMessage(context.Background(), &kafka.IncomingMessage{
		Value:   body,
		Headers: map[string]string{"user_id": "u1"},
	})
	require.NoError(t, err)

	leads := f.leads.all()
	require.Len(t, leads, 1)
	assert.Equal(t, "maps", leads[0].Source)

	err = f.service.HandleMessage(context.Background(), &kafka.IncomingMessage{Value: body})
	assert.ErrorIs(t, err, fernerrors.ErrUnauthenticated)
	var permanent *backoff.PermanentError
	assert.ErrorAs(t, err, &permanent, "bad input is not redelivered")

	err = f.service.HandleMessage(context.Background(), &kafka.IncomingMessage{
		Value:   []byte("not json"),
		Headers: map[string]string{"user_id": "u1"},
	})
	assert.ErrorAs(t, err, &permanent)
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(fernerrors.ErrImportInProgress))
	assert.True(t, retryable(errors.New("connection reset")))
	assert.False(t, retryable(fernerrors.ErrUnauthenticated))
	assert.False(t, retryable(fernerrors.NewMappingError("unknown field")))
}

func TestParkFailed(t *testing.T) {
	dlq := &memoryDLQ{}
	park := ParkFailed(dlq)

	err := park(context.Background(), &kafka.IncomingMessage{
		Value:     []byte("not json"),
		Headers:   map[string]string{"user_id": "u1"},
		Topic:     "fern.imports",
		Partition: 2,
		Offset:    41,
	}, errors.New("decode import request: invalid character"))
	require.NoError(t, err)

	require.Len(t, dlq.entries, 1)
	entry := dlq.entries[0]
	assert.Equal(t, "u1", entry.UserID)
	assert.Equal(t, int64(41), entry.Offset)
	assert.JSONEq(t, `"not json"`, string(entry.Payload))
	assert.Contains(t, entry.ErrorMessage, "decode import request")
}
