package cache

import (
	"github.com/sirupsen/logrus"

	"github.com/IvanBrykalov/logcache/wal"
)

// Default limits. The global default intentionally dwarfs the local one:
// one lagging follower's cache should hit its own ceiling well before the
// process-wide budget is threatened.
const (
	DefaultHardLimitBytes       = 128 << 20
	DefaultGlobalHardLimitBytes = 1 << 30

	// DefaultGlobalTracker is the registry namespace shared by all
	// caches that don't pick their own.
	DefaultGlobalTracker = "log-cache"
)

// Options configures a cache instance. Zero values get sane defaults in
// New(); only Log is required.
type Options struct {
	// Name identifies this instance in logs and dumps (e.g. a tablet or
	// shard id).
	Name string

	// Log is the durable log behind the cache. Required.
	Log wal.Log

	// HardLimitBytes is this instance's memory ceiling. Appends that
	// would push resident bytes past it are rejected.
	// Default DefaultHardLimitBytes.
	HardLimitBytes int64

	// GlobalTracker names the process-wide accounting namespace this
	// instance registers with; instances sharing a name share a budget.
	// Default DefaultGlobalTracker.
	GlobalTracker string

	// GlobalHardLimitBytes is the ceiling for the shared namespace. It
	// only takes effect when this instance is the one creating the
	// tracker; joining an existing namespace keeps its limit.
	// Default DefaultGlobalHardLimitBytes.
	GlobalHardLimitBytes int64

	// Metrics receives observability signals. Default NoopMetrics.
	Metrics Metrics

	// Logger receives diagnostics (limit rejections, dump output).
	// Default logrus standard logger.
	Logger logrus.FieldLogger
}

func (o *Options) applyDefaults() {
	if o.HardLimitBytes <= 0 {
		o.HardLimitBytes = DefaultHardLimitBytes
	}
	if o.GlobalTracker == "" {
		o.GlobalTracker = DefaultGlobalTracker
	}
	if o.GlobalHardLimitBytes <= 0 {
		o.GlobalHardLimitBytes = DefaultGlobalHardLimitBytes
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
}
