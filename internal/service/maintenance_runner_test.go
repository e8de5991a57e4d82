package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cms-api/internal/models"
	"github.com/noah-isme/cms-api/pkg/jobs"
)

type sweeperStub struct {
	expired int64
	err     error
	calls   int
}

func (s *sweeperStub) ProcessExpiredNotices(ctx context.Context) (int64, error) {
	s.calls++
	return s.expired, s.err
}

type syncerStub struct {
	calls int
}

func (s *syncerStub) SyncEmployees(ctx context.Context) (*SyncResult, error) {
	s.calls++
	return &SyncResult{Created: 2}, nil
}

type queueStub struct {
	mu   sync.Mutex
	jobs []jobs.Job
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *queueStub) types() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.jobs))
	for _, job := range q.jobs {
		out = append(out, job.Type)
	}
	return out
}

func jobCount(t *testing.T, metrics *MetricsService, jobType, outcome string) float64 {
	t.Helper()
	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "cms_jobs_processed_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["type"] == jobType && labels["outcome"] == outcome {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestMaintenanceHandlersDispatch(t *testing.T) {
	sweeper := &sweeperStub{expired: 3}
	syncer := &syncerStub{}
	audit := &auditRepoMock{}
	metrics := NewMetricsService()
	runner := NewMaintenanceRunner(sweeper, syncer, audit, metrics, time.Minute, nil)

	mux := jobs.NewMux()
	runner.Register(mux)

	require.NoError(t, mux.Dispatch(context.Background(), jobs.Job{Type: JobNoticeExpirySweep}))
	require.NoError(t, mux.Dispatch(context.Background(), jobs.Job{Type: JobEmployeeSync}))
	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, 1, syncer.calls)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionNoticeSweep, audit.logs[0].Action)
	assert.JSONEq(t, `{"expired":3,"attempt":0}`, string(audit.logs[0].NewValues))

	assert.Equal(t, 1.0, jobCount(t, metrics, JobNoticeExpirySweep, "success"))
	assert.Equal(t, 1.0, jobCount(t, metrics, JobEmployeeSync, "success"))
}

func TestMaintenanceSweepFailureIsReturned(t *testing.T) {
	sweeper := &sweeperStub{err: errors.New("db down")}
	metrics := NewMetricsService()
	runner := NewMaintenanceRunner(sweeper, nil, nil, metrics, 0, nil)

	mux := jobs.NewMux()
	runner.Register(mux)

	err := mux.Dispatch(context.Background(), jobs.Job{Type: JobNoticeExpirySweep})
	assert.Error(t, err)
	assert.Equal(t, 1.0, jobCount(t, metrics, JobNoticeExpirySweep, "failure"))

	err = mux.Dispatch(context.Background(), jobs.Job{Type: JobEmployeeSync})
	assert.ErrorIs(t, err, jobs.ErrUnknownType)
}

func TestMaintenanceStartEnqueuesRounds(t *testing.T) {
	runner := NewMaintenanceRunner(&sweeperStub{}, &syncerStub{}, nil, nil, 10*time.Millisecond, nil)
	queue := &queueStub{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner.Start(ctx, queue)
	assert.Equal(t, []string{JobNoticeExpirySweep, JobEmployeeSync}, queue.types()[:2])

	assert.Eventually(t, func() bool { return len(queue.types()) >= 4 }, time.Second, 5*time.Millisecond)
}
