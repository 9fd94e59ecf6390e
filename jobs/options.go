package jobs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures the scanner, executor, worker and scheduler.
type Option func(*runtime)

type runtime struct {
	now     func() time.Time
	logger  *zap.Logger
	metrics *Metrics
}

func WithClock(now func() time.Time) Option {
	return func(r *runtime) {
		r.now = now
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *runtime) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *runtime) {
		r.metrics = m
	}
}

func newRuntime(name string, opts []Option) runtime {
	r := runtime{
		now:    func() time.Time { return time.Now().UTC() },
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&r)
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(prometheus.NewRegistry())
	}
	r.logger = r.logger.Named(name)
	return r
}
