package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"analytics-sdk/internal/common/errors"
	"analytics-sdk/internal/common/utils"
)

// interval accepts either an interval string ("15m", "1d") or a number of
// seconds. Unreadable values decode to utils.InvalidInterval.
type interval time.Duration

func (i *interval) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*i = interval(utils.ParseInterval(s))
		return nil
	}

	var seconds float64
	if err := json.Unmarshal(data, &seconds); err != nil || seconds < 0 {
		*i = interval(utils.InvalidInterval)
		return nil
	}
	*i = interval(time.Duration(seconds * float64(time.Second)))
	return nil
}

func (i interval) MarshalJSON() ([]byte, error) {
	return json.Marshal(utils.FormatInterval(time.Duration(i)))
}

type batchingDocument struct {
	BatchSize    *int      `json:"batch_size,omitempty"`
	MaxQueueSize *int      `json:"max_queue_size,omitempty"`
	Expiration   *interval `json:"expiration,omitempty"`
}

// document is the wire form. Pointer fields distinguish "absent" from zero.
type document struct {
	CollectDispatcher       *bool             `json:"collect_dispatcher,omitempty"`
	TagManagementDispatcher *bool             `json:"tag_management_dispatcher,omitempty"`
	Batching                *batchingDocument `json:"batching,omitempty"`
	BatterySaver            *bool             `json:"battery_saver,omitempty"`
	WifiOnly                *bool             `json:"wifi_only,omitempty"`
	RefreshInterval         *interval         `json:"refresh_interval,omitempty"`
	DisableLibrary          *bool             `json:"disable_library,omitempty"`
	LogLevel                *string           `json:"log_level,omitempty"`
	ETag                    *string           `json:"etag,omitempty"`
}

// Merge returns a copy of base with every field present in data applied.
// Fields that are absent or carry an unreadable value keep base's value.
// The batch size is capped at MaxBatchSize.
func Merge(base *LibrarySettings, data []byte) (*LibrarySettings, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.MalformedError("invalid library settings document", err)
	}

	merged := base.Clone()
	doc.applyTo(merged)
	return merged, nil
}

func (d *document) applyTo(s *LibrarySettings) {
	if d.CollectDispatcher != nil {
		s.CollectDispatcherEnabled = *d.CollectDispatcher
	}
	if d.TagManagementDispatcher != nil {
		s.TagManagementDispatcherEnabled = *d.TagManagementDispatcher
	}
	if b := d.Batching; b != nil {
		if b.BatchSize != nil && *b.BatchSize >= 0 {
			s.Batching.BatchSize = *b.BatchSize
			if s.Batching.BatchSize > MaxBatchSize {
				s.Batching.BatchSize = MaxBatchSize
			}
		}
		if b.MaxQueueSize != nil {
			s.Batching.MaxQueueSize = *b.MaxQueueSize
		}
		if b.Expiration != nil && time.Duration(*b.Expiration) != utils.InvalidInterval {
			s.Batching.Expiration = time.Duration(*b.Expiration)
		}
	}
	if d.BatterySaver != nil {
		s.BatterySaver = *d.BatterySaver
	}
	if d.WifiOnly != nil {
		s.WifiOnly = *d.WifiOnly
	}
	if d.RefreshInterval != nil && time.Duration(*d.RefreshInterval) != utils.InvalidInterval {
		s.RefreshInterval = time.Duration(*d.RefreshInterval)
	}
	if d.DisableLibrary != nil {
		s.DisableLibrary = *d.DisableLibrary
	}
	if d.LogLevel != nil {
		if level, ok := ParseLogLevel(*d.LogLevel); ok {
			s.LogLevel = level
		}
	}
	if d.ETag != nil {
		s.ETag = *d.ETag
	}
}

// MarshalJSON encodes the settings in the document form Merge reads.
func (s *LibrarySettings) MarshalJSON() ([]byte, error) {
	expiration := interval(s.Batching.Expiration)
	refresh := interval(s.RefreshInterval)
	logLevel := string(s.LogLevel)

	doc := document{
		CollectDispatcher:       &s.CollectDispatcherEnabled,
		TagManagementDispatcher: &s.TagManagementDispatcherEnabled,
		Batching: &batchingDocument{
			BatchSize:    &s.Batching.BatchSize,
			MaxQueueSize: &s.Batching.MaxQueueSize,
			Expiration:   &expiration,
		},
		BatterySaver:    &s.BatterySaver,
		WifiOnly:        &s.WifiOnly,
		RefreshInterval: &refresh,
		DisableLibrary:  &s.DisableLibrary,
		LogLevel:        &logLevel,
	}
	if s.ETag != "" {
		doc.ETag = &s.ETag
	}
	return json.Marshal(doc)
}

// looseBool reads the string or boolean flags used by publish settings.
func looseBool(v interface{}) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(t)
		return b, err == nil
	default:
		return false, false
	}
}

// looseFloat reads the string or numeric values used by publish settings.
func looseFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func describe(v interface{}) string {
	return fmt.Sprintf("%v", v)
}
