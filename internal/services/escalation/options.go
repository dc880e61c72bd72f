package escalation

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/propdesk/propdesk/internal/cache"
	"github.com/propdesk/propdesk/internal/notifications"
)

type options struct {
	Logger       *log.Logger
	Cron         *cron.Cron
	Interval     time.Duration
	Workers      int
	SweepTimeout time.Duration
	FetchTimeout time.Duration
	Dispatcher   notifications.Dispatcher
	Resolver     notifications.RecipientResolver
	Predicates   PredicateResolver
	Cache        *cache.RedisCache
	Now          func() time.Time
}

// Option applies configuration to the escalation service.
type Option func(*options)

func defaultOptions() options {
	return options{
		Logger:       log.Default(),
		Interval:     15 * time.Minute,
		Workers:      4,
		SweepTimeout: 5 * time.Minute,
		FetchTimeout: 30 * time.Second,
		Now:          time.Now,
	}
}

// WithLogger injects a custom logger implementation.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.Logger = l
	}
}

// WithCron supplies a preconfigured cron scheduler instance.
func WithCron(c *cron.Cron) Option {
	return func(o *options) {
		o.Cron = c
	}
}

// WithInterval sets the time between sweeps. Thresholds are hour-grained,
// so the interval is independent of any rule's granularity.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.Interval = d
		}
	}
}

// WithWorkers bounds the sweep worker pool.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.Workers = n
		}
	}
}

// WithSweepTimeout bounds one full sweep.
func WithSweepTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.SweepTimeout = d
		}
	}
}

// WithFetchTimeout bounds each snapshot-provider and predicate call so one
// stalled domain cannot exhaust the sweep budget.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.FetchTimeout = d
		}
	}
}

// WithDispatcher injects the notification delivery channel.
func WithDispatcher(d notifications.Dispatcher) Option {
	return func(o *options) {
		o.Dispatcher = d
	}
}

// WithRecipientResolver injects the role-to-user directory collaborator.
func WithRecipientResolver(r notifications.RecipientResolver) Option {
	return func(o *options) {
		o.Resolver = r
	}
}

// WithPredicateResolver injects the collaborator evaluating custom rule
// predicates. Custom rules are skipped when absent.
func WithPredicateResolver(r PredicateResolver) Option {
	return func(o *options) {
		o.Predicates = r
	}
}

// WithCache injects the Redis/Valkey cache used for sweep status persistence.
func WithCache(c *cache.RedisCache) Option {
	return func(o *options) {
		o.Cache = c
	}
}

// WithClock replaces the time source. Tests pin the sweep's evaluation time
// with this.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.Now = now
		}
	}
}
