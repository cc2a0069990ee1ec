package worker

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs jobs on cron specs. A job still running when its next
// tick fires is skipped.
type Scheduler struct {
	cron    *cron.Cron
	logger  zerolog.Logger
	timeout time.Duration
	runs    *prometheus.CounterVec
	seconds *prometheus.HistogramVec
}

// NewScheduler builds a UTC scheduler. reg may be nil.
func NewScheduler(logger zerolog.Logger, timeout time.Duration, reg prometheus.Registerer) *Scheduler {
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		timeout: timeout,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blogpilot_worker_job_runs_total",
			Help: "Scheduled job runs by job and result.",
		}, []string{"job", "result"}),
		seconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blogpilot_worker_job_duration_seconds",
			Help:    "Scheduled job duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}
	if reg != nil {
		reg.MustRegister(s.runs, s.seconds)
	}
	return s
}

// Add registers job under spec (standard five-field cron syntax).
func (s *Scheduler) Add(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() { _ = s.RunOnce(context.Background(), job) })
	return err
}

// RunOnce executes job immediately with the scheduler's timeout.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)
	s.seconds.WithLabelValues(job.Name()).Observe(elapsed.Seconds())

	result := "ok"
	evt := s.logger.Info()
	if err != nil {
		result = "error"
		evt = s.logger.Error().Err(err)
	}
	s.runs.WithLabelValues(job.Name(), result).Inc()
	evt.Str("job", job.Name()).Dur("elapsed", elapsed).Msg("job finished")
	return err
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for running jobs until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn().Msg("scheduler stop timed out with jobs still running")
	}
}

type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
