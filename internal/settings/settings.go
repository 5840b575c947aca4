// Package settings holds the library settings model and keeps it in sync
// with bundled, cached, and remote sources.
package settings

import (
	"strings"
	"time"
)

// MaxBatchSize caps the number of events sent in one batch.
const MaxBatchSize = 10

// LogLevel is the verbosity requested by a settings document.
type LogLevel string

const (
	LogLevelDev    LogLevel = "dev"
	LogLevelQA     LogLevel = "qa"
	LogLevelProd   LogLevel = "prod"
	LogLevelSilent LogLevel = "silent"
)

// ParseLogLevel reads a log level case-insensitively.
func ParseLogLevel(s string) (LogLevel, bool) {
	switch level := LogLevel(strings.ToLower(strings.TrimSpace(s))); level {
	case LogLevelDev, LogLevelQA, LogLevelProd, LogLevelSilent:
		return level, true
	default:
		return "", false
	}
}

// Batching controls queueing and batch delivery.
type Batching struct {
	// BatchSize is the number of events per batch. Values of 0 and 1 both
	// mean events are sent one at a time.
	BatchSize int
	// MaxQueueSize bounds the durable queue. Negative means unbounded;
	// zero keeps nothing queued.
	MaxQueueSize int
	// Expiration is how long a queued event stays eligible for sending.
	Expiration time.Duration
}

// LibrarySettings is an immutable snapshot of the runtime configuration.
// Replace it wholesale; never modify a snapshot that has been published.
type LibrarySettings struct {
	CollectDispatcherEnabled       bool
	TagManagementDispatcherEnabled bool
	Batching                       Batching
	BatterySaver                   bool
	WifiOnly                       bool
	RefreshInterval                time.Duration
	DisableLibrary                 bool
	LogLevel                       LogLevel
	ETag                           string
}

// Defaults returns the settings used before any source has been read.
func Defaults() *LibrarySettings {
	return &LibrarySettings{
		Batching: Batching{
			BatchSize:    1,
			MaxQueueSize: 100,
			Expiration:   24 * time.Hour,
		},
		RefreshInterval: 15 * time.Minute,
		LogLevel:        LogLevelProd,
	}
}

// Clone returns a copy that can be modified before publishing.
func (s *LibrarySettings) Clone() *LibrarySettings {
	c := *s
	return &c
}

// EffectiveBatchSize returns the batch size, treating anything below one as one.
func (s *LibrarySettings) EffectiveBatchSize() int {
	if s.Batching.BatchSize < 1 {
		return 1
	}
	return s.Batching.BatchSize
}
