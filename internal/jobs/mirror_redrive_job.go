package jobs

import (
	"context"
	"time"

	"github.com/straye-as/indicator-api/internal/service"
	"go.uber.org/zap"
)

const MirrorRedriveJobName = "mirror_redrive"

// MirrorRedriver is the part of the mirror service the job drives
type MirrorRedriver interface {
	Enabled() bool
	RedriveTransient(ctx context.Context) (service.RedriveSummary, error)
	ReportTerminal(ctx context.Context) (int, error)
}

// MirrorRedriveJob re-sends transient spreadsheet failures and then reports
// failures that need an operator (auth, config, or retries exhausted).
type MirrorRedriveJob struct {
	mirror  MirrorRedriver
	logger  *zap.Logger
	timeout time.Duration
}

func NewMirrorRedriveJob(mirror MirrorRedriver, logger *zap.Logger, timeout time.Duration) *MirrorRedriveJob {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &MirrorRedriveJob{
		mirror:  mirror,
		logger:  logger.With(zap.String("job_name", MirrorRedriveJobName)),
		timeout: timeout,
	}
}

// Run performs one pass. It is called by the scheduler.
func (j *MirrorRedriveJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	j.RunContext(ctx)
}

// RunContext performs one pass bounded by ctx
func (j *MirrorRedriveJob) RunContext(ctx context.Context) {
	if !j.mirror.Enabled() {
		return
	}
	start := time.Now()

	summary, err := j.mirror.RedriveTransient(ctx)
	if err != nil {
		j.logger.Error("mirror re-drive failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		// still report what is stuck
	}

	terminal, err := j.mirror.ReportTerminal(ctx)
	if err != nil {
		j.logger.Error("mirror failure report failed", zap.Error(err))
	}

	if summary.Processed > 0 || terminal > 0 {
		j.logger.Info("mirror re-drive completed",
			zap.Int("processed", summary.Processed),
			zap.Int("resolved", summary.Resolved),
			zap.Int("failed", summary.Failed),
			zap.Int("needs_operator", terminal),
			zap.Duration("duration", time.Since(start)))
	}
}

// RegisterMirrorRedriveJob schedules the re-drive job on cronExpr
func RegisterMirrorRedriveJob(scheduler *Scheduler, mirror MirrorRedriver, logger *zap.Logger, cronExpr string, timeout time.Duration) error {
	job := NewMirrorRedriveJob(mirror, logger, timeout)
	return scheduler.AddJob(MirrorRedriveJobName, cronExpr, job.Run)
}
