package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/cms-api/internal/models"
	"github.com/noah-isme/cms-api/pkg/jobs"
)

// Maintenance job types.
const (
	JobNoticeExpirySweep = "notice_expiry_sweep"
	JobEmployeeSync      = "employee_sync"
)

type noticeSweeper interface {
	ProcessExpiredNotices(ctx context.Context) (int64, error)
}

type employeeSyncer interface {
	SyncEmployees(ctx context.Context) (*SyncResult, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// MaintenanceRunner periodically schedules the notice expiry sweep and the
// employee sync on a worker queue.
type MaintenanceRunner struct {
	notices  noticeSweeper
	syncer   employeeSyncer
	audit    auditRepository
	metrics  *MetricsService
	interval time.Duration
	logger   *zap.Logger
}

// NewMaintenanceRunner constructs a runner. syncer and audit may be nil.
func NewMaintenanceRunner(notices noticeSweeper, syncer employeeSyncer, audit auditRepository, metrics *MetricsService, interval time.Duration, logger *zap.Logger) *MaintenanceRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &MaintenanceRunner{
		notices:  notices,
		syncer:   syncer,
		audit:    audit,
		metrics:  metrics,
		interval: interval,
		logger:   logger,
	}
}

// Register binds the maintenance job handlers on mux.
func (r *MaintenanceRunner) Register(mux *jobs.Mux) {
	mux.Handle(JobNoticeExpirySweep, r.handleSweep)
	if r.syncer != nil {
		mux.Handle(JobEmployeeSync, r.handleSync)
	}
}

// Start enqueues one round immediately and then one per interval until ctx is done.
func (r *MaintenanceRunner) Start(ctx context.Context, queue jobDispatcher) {
	r.EnqueueRound(queue)
	ticker := time.NewTicker(r.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.EnqueueRound(queue)
			}
		}
	}()
}

// EnqueueRound schedules every maintenance job once.
func (r *MaintenanceRunner) EnqueueRound(queue jobDispatcher) {
	types := []string{JobNoticeExpirySweep}
	if r.syncer != nil {
		types = append(types, JobEmployeeSync)
	}
	for _, jobType := range types {
		if err := queue.Enqueue(jobs.Job{Type: jobType}); err != nil {
			r.logger.Warn("failed to enqueue maintenance job", zap.String("type", jobType), zap.Error(err))
		}
	}
}

func (r *MaintenanceRunner) handleSweep(ctx context.Context, job jobs.Job) error {
	n, err := r.notices.ProcessExpiredNotices(ctx)
	r.metrics.RecordJob(job.Type, err)
	if err != nil {
		return err
	}
	if n > 0 && r.audit != nil {
		payload, _ := json.Marshal(map[string]interface{}{"expired": n, "attempt": job.Attempt})
		if err := r.audit.CreateAuditLog(ctx, &models.AuditLog{
			Action:    models.AuditActionNoticeSweep,
			Resource:  "notices",
			NewValues: payload,
			IPAddress: "system",
			UserAgent: "maintenance-runner",
		}); err != nil {
			r.logger.Warn("failed to record sweep audit log", zap.Error(err))
		}
	}
	return nil
}

func (r *MaintenanceRunner) handleSync(ctx context.Context, job jobs.Job) error {
	result, err := r.syncer.SyncEmployees(ctx)
	r.metrics.RecordJob(job.Type, err)
	if err != nil {
		return err
	}
	r.logger.Debug("employee sync job done", zap.Int("created", result.Created), zap.Int("deactivated", result.Deactivated))
	return nil
}
