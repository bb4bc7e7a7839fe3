// Package jobs defines the background tasks run by the worker: bulk folio
// imports handed off by the API and the scheduled document count audit.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"pickings/internal/apperrors"
	"pickings/internal/importer"
	"pickings/internal/logging"
	"pickings/internal/services"
	"pickings/internal/tracing"
)

// Task types
const (
	TypeFolioImport = "folio:import"
	TypeCountAudit  = "folio:count_audit"
)

// Queues and their priorities
const (
	QueueDefault     = "default"
	QueueMaintenance = "maintenance"
)

// Queues is the asynq.Config.Queues value the worker runs with.
var Queues = map[string]int{
	QueueDefault:     3,
	QueueMaintenance: 1,
}

const (
	importTimeout   = 10 * time.Minute
	importRetention = time.Hour
	auditTimeout    = 5 * time.Minute
)

// ImportPayload carries a parsed upload to the worker.
type ImportPayload struct {
	JobID    string              `json:"job_id"`
	Checksum string              `json:"checksum"`
	FileName string              `json:"file_name"`
	Columns  []string            `json:"columns"`
	Rows     []map[string]string `json:"rows"`
}

// AuditPayload configures a count audit run.
type AuditPayload struct {
	Repair bool `json:"repair"`
}

// Enqueuer is the part of *asynq.Client the API needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EnqueueImport queues sheet for import and returns the job id. The task id
// is derived from the file checksum so the same upload is accepted once while
// its task is retained.
func EnqueueImport(ctx context.Context, client Enqueuer, sheet importer.Sheet, checksum, fileName string) (string, error) {
	jobID := uuid.NewString()
	payload, err := json.Marshal(ImportPayload{
		JobID:    jobID,
		Checksum: checksum,
		FileName: fileName,
		Columns:  sheet.Columns,
		Rows:     sheet.Rows,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal import payload: %w", err)
	}

	task := asynq.NewTask(TypeFolioImport, payload)
	_, err = client.EnqueueContext(ctx, task,
		asynq.TaskID("import:"+checksum),
		asynq.Queue(QueueDefault),
		asynq.Timeout(importTimeout),
		asynq.Retention(importRetention),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return "", apperrors.New(apperrors.ErrAlreadyExists, "This file is already queued for import.")
	}
	if err != nil {
		return "", fmt.Errorf("failed to enqueue import: %w", err)
	}
	return jobID, nil
}

// NewAuditTask builds the count audit task.
func NewAuditTask(repair bool) (*asynq.Task, error) {
	payload, err := json.Marshal(AuditPayload{Repair: repair})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit payload: %w", err)
	}
	return asynq.NewTask(TypeCountAudit, payload, asynq.Queue(QueueMaintenance), asynq.Timeout(auditTimeout)), nil
}

// Scheduler is the part of *asynq.Scheduler used to register periodic tasks.
type Scheduler interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
}

// RegisterSchedules adds the periodic audit. An empty cronspec disables it.
func RegisterSchedules(s Scheduler, cronspec string, repair bool) (string, error) {
	if cronspec == "" {
		return "", nil
	}
	task, err := NewAuditTask(repair)
	if err != nil {
		return "", err
	}
	id, err := s.Register(cronspec, task)
	if err != nil {
		return "", fmt.Errorf("failed to schedule count audit %q: %w", cronspec, err)
	}
	return id, nil
}

// Folios is the registry surface the task handlers drive.
type Folios interface {
	Import(ctx context.Context, sheet importer.Sheet) (services.ImportResult, error)
	AuditCounts(ctx context.Context, repair bool) (services.AuditReport, error)
}

// Handlers processes tasks against the folio registry.
type Handlers struct {
	folios Folios
	logger *logging.Logger
}

// NewHandlers creates task handlers.
func NewHandlers(folios Folios, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Handlers{folios: folios, logger: logger}
}

// Register binds every task type on mux.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeFolioImport, h.HandleImport)
	mux.HandleFunc(TypeCountAudit, h.HandleCountAudit)
}

// HandleImport runs a queued import. Bad payloads and rejected files are not
// retried.
func (h *Handlers) HandleImport(ctx context.Context, t *asynq.Task) (err error) {
	start := time.Now()
	defer func() { h.logger.LogJobProcessing(QueueDefault, TypeFolioImport, time.Since(start), err) }()

	var p ImportPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal import payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := startSpan(ctx, TypeFolioImport, p.JobID, QueueDefault)
	defer span.End()

	res, err := h.folios.Import(ctx, importer.Sheet{Columns: p.Columns, Rows: p.Rows})
	if err != nil {
		tracing.SetSpanError(ctx, err)
		if apperrors.IsExpected(err) {
			return fmt.Errorf("import %s: %v: %w", p.JobID, err, asynq.SkipRetry)
		}
		return fmt.Errorf("import %s: %w", p.JobID, err)
	}

	h.logger.Zerolog().Info().
		Str("job_id", p.JobID).
		Str("file", p.FileName).
		Int("added", res.Added).
		Int("skipped", res.Skipped).
		Msg(res.Message())
	writeResult(t, res)
	return nil
}

// HandleCountAudit runs the document count audit.
func (h *Handlers) HandleCountAudit(ctx context.Context, t *asynq.Task) (err error) {
	start := time.Now()
	defer func() { h.logger.LogJobProcessing(QueueMaintenance, TypeCountAudit, time.Since(start), err) }()

	var p AuditPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("failed to unmarshal audit payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	ctx, span := startSpan(ctx, TypeCountAudit, "", QueueMaintenance)
	defer span.End()

	report, err := h.folios.AuditCounts(ctx, p.Repair)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return fmt.Errorf("count audit: %w", err)
	}

	level := zerolog.InfoLevel
	if len(report.Drift) > 0 {
		level = zerolog.WarnLevel
	}
	h.logger.Zerolog().WithLevel(level).
		Int("checked", report.Checked).
		Int("drift", len(report.Drift)).
		Int("repaired", report.Repaired).
		Msg("count audit finished")
	writeResult(t, report)
	return nil
}

func writeResult(t *asynq.Task, v interface{}) {
	w := t.ResultWriter()
	if w == nil {
		return
	}
	if data, err := json.Marshal(v); err == nil {
		_, _ = w.Write(data)
	}
}

func startSpan(ctx context.Context, jobType, jobID, queue string) (context.Context, trace.Span) {
	return otel.Tracer(tracing.ServiceName).Start(ctx, jobType, trace.WithAttributes(tracing.JobAttrs(jobID, queue, jobType)...))
}
