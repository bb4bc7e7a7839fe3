package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pickings/internal/apperrors"
	"pickings/internal/cache"
	"pickings/internal/importer"
	"pickings/internal/logging"
	"pickings/internal/models"
	"pickings/internal/services"
	"pickings/internal/store"
)

type recordingClient struct {
	tasks []*asynq.Task
	ids   map[string]bool
}

func (c *recordingClient) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if c.ids == nil {
		c.ids = map[string]bool{}
	}
	for _, o := range opts {
		if o.Type() == asynq.TaskIDOpt {
			id := o.Value().(string)
			if c.ids[id] {
				return nil, asynq.ErrTaskIDConflict
			}
			c.ids[id] = true
		}
	}
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

type recordingScheduler struct {
	specs []string
	tasks []*asynq.Task
}

func (s *recordingScheduler) Register(cronspec string, task *asynq.Task, _ ...asynq.Option) (string, error) {
	s.specs = append(s.specs, cronspec)
	s.tasks = append(s.tasks, task)
	return "entry-1", nil
}

func newRegistry(t *testing.T) (*services.FolioRegistry, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	require.NoError(t, mem.EnsureTable(context.Background(), store.TablePickings, models.PickingColumns))
	folios := services.NewFolioRegistry(mem, cache.New[[]models.Folio](cache.NewMemory(), cache.Options{Name: "folios"}), services.Options{})
	return folios, mem
}

func testLogger() (*logging.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return logging.NewLogger(logging.InfoLevel, &buf), &buf
}

func TestEnqueueImport_DeduplicatesByChecksum(t *testing.T) {
	client := &recordingClient{}
	sheet := importer.FromRows([]string{"FOLIO"}, [][]string{{"A1"}})

	jobID, err := EnqueueImport(context.Background(), client, sheet, "abc123", "pickings.xlsx")
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)
	require.Len(t, client.tasks, 1)
	assert.Equal(t, TypeFolioImport, client.tasks[0].Type())

	var p ImportPayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &p))
	assert.Equal(t, jobID, p.JobID)
	assert.Equal(t, "abc123", p.Checksum)
	assert.Equal(t, []map[string]string{{"FOLIO": "A1"}}, p.Rows)

	_, err = EnqueueImport(context.Background(), client, sheet, "abc123", "copy.xlsx")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.Equal(t, "This file is already queued for import.", apperrors.Message(err))

	_, err = EnqueueImport(context.Background(), client, sheet, "def456", "other.xlsx")
	assert.NoError(t, err)
}

func TestHandleImport(t *testing.T) {
	folios, mem := newRegistry(t)
	logger, buf := testLogger()
	h := NewHandlers(folios, logger)

	payload, err := json.Marshal(ImportPayload{
		JobID:   "job-1",
		Columns: []string{"FOLIO", "RUTA"},
		Rows:    []map[string]string{{"FOLIO": "A1", "RUTA": "R1"}, {"FOLIO": "A1"}},
	})
	require.NoError(t, err)

	require.NoError(t, h.HandleImport(context.Background(), asynq.NewTask(TypeFolioImport, payload)))

	rows, err := mem.ReadAll(context.Background(), store.TablePickings)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusPendiente, rows[0].Get(models.ColStatus))
	assert.Contains(t, buf.String(), "Successfully added 1 new records. Skipped 1 duplicates.")
	assert.Contains(t, buf.String(), "job-1")
}

func TestHandleImport_RejectedFileIsNotRetried(t *testing.T) {
	folios, _ := newRegistry(t)
	logger, _ := testLogger()
	h := NewHandlers(folios, logger)

	payload, err := json.Marshal(ImportPayload{JobID: "job-2", Columns: []string{"RUTA"}, Rows: []map[string]string{{"RUTA": "R1"}}})
	require.NoError(t, err)

	err = h.HandleImport(context.Background(), asynq.NewTask(TypeFolioImport, payload))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	err = h.HandleImport(context.Background(), asynq.NewTask(TypeFolioImport, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleCountAudit(t *testing.T) {
	folios, mem := newRegistry(t)
	ctx := context.Background()
	drifted := models.Folio{Folio: "A1", Status: models.StatusImpresos, ScannedDocs: []string{"D1", "D2"}, ScannedDocCount: 5}
	require.NoError(t, mem.AppendRow(ctx, store.TablePickings, models.Ordered(models.PickingColumns, drifted.Cells())))

	logger, buf := testLogger()
	h := NewHandlers(folios, logger)

	task, err := NewAuditTask(true)
	require.NoError(t, err)
	require.NoError(t, h.HandleCountAudit(ctx, task))

	f, err := folios.Get(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.ScannedDocCount)
	assert.Contains(t, buf.String(), "count audit finished")
	assert.Contains(t, buf.String(), `"repaired":1`)
}

func TestRegisterSchedules(t *testing.T) {
	s := &recordingScheduler{}

	id, err := RegisterSchedules(s, "", true)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Empty(t, s.specs)

	id, err = RegisterSchedules(s, "@every 1h", false)
	require.NoError(t, err)
	assert.Equal(t, "entry-1", id)
	assert.Equal(t, []string{"@every 1h"}, s.specs)
	assert.Equal(t, TypeCountAudit, s.tasks[0].Type())

	var p AuditPayload
	require.NoError(t, json.Unmarshal(s.tasks[0].Payload(), &p))
	assert.False(t, p.Repair)
}

func TestHandlers_Register(t *testing.T) {
	folios, _ := newRegistry(t)
	mux := asynq.NewServeMux()
	NewHandlers(folios, nil).Register(mux)

	h, pattern := mux.Handler(asynq.NewTask(TypeCountAudit, nil))
	assert.NotNil(t, h)
	assert.Equal(t, TypeCountAudit, pattern)
}
