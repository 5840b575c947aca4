package messaging

import (
	"analytics-sdk/internal/common/logging"
	"analytics-sdk/internal/settings"
)

// LogLevelUpdater applies the log level carried by library settings to the
// global logger.
type LogLevelUpdater struct {
	logger logging.Logger
}

// NewLogLevelUpdater creates the listener.
func NewLogLevelUpdater() *LogLevelUpdater {
	return &LogLevelUpdater{logger: logging.GetGlobalLogger()}
}

// OnLibrarySettingsUpdated switches the global level when it differs.
func (u *LogLevelUpdater) OnLibrarySettingsUpdated(s *settings.LibrarySettings) {
	if s == nil {
		return
	}
	level := logging.LevelFromSettings(string(s.LogLevel))
	if logging.SetGlobalLevel(level) {
		u.logger.Debug("Log level updated", logging.Field{Key: "level", Value: level.String()})
	}
}
