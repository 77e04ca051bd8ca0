package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/payment"
)

// Reconciler is the part of payment.Service the job needs.
type Reconciler interface {
	ReconcileAll(ctx context.Context, fix bool) ([]payment.Reconciliation, error)
}

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	logger core.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(fmt.Sprintf("cron: %s: %v", msg, err), append([]interface{}{err}, keysAndValues...)...)
}

// ReconcileJob periodically rewrites drifted student projections from the ledger.
type ReconcileJob struct {
	cron    *cron.Cron
	svc     Reconciler
	logger  core.Logger
	timeout time.Duration
}

// NewReconcileJob schedules the job with a standard 5 fields cron spec (or a descriptor such as "@daily").
// Runs never overlap.
func NewReconcileJob(spec string, svc Reconciler, logger core.Logger, timeout time.Duration) (*ReconcileJob, error) {
	cl := cronLogger{logger: logger}
	job := &ReconcileJob{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		svc:     svc,
		logger:  logger,
		timeout: timeout,
	}
	if _, err := job.cron.AddFunc(spec, job.Run); err != nil {
		return nil, errors.Wrapf(err, "scheduling reconciliation %q", spec)
	}
	return job, nil
}

func (job *ReconcileJob) Start() {
	job.cron.Start()
}

// Stop stops the scheduler and waits for a running reconciliation, until ctx is done.
func (job *ReconcileJob) Stop(ctx context.Context) {
	select {
	case <-job.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Run reconciles every student once.
func (job *ReconcileJob) Run() {
	ctx := context.Background()
	if job.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.timeout)
		defer cancel()
	}

	recs, err := job.svc.ReconcileAll(ctx, true)
	if err != nil {
		job.logger.Error(fmt.Sprintf("scheduled reconciliation: %v", err), err)
		return
	}

	var drifted, fixed int
	for _, rec := range recs {
		if !rec.Consistent {
			drifted++
		}
		if rec.Fixed {
			fixed++
		}
	}
	job.logger.Info(fmt.Sprintf("scheduled reconciliation: %d students, %d drifted, %d fixed", len(recs), drifted, fixed))
}
