package settings

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"analytics-sdk/internal/common/errors"
)

// Keys of the "mobile publish settings" object embedded in published HTML.
const (
	mpsKeyCollectDispatcher       = "enable_collect"
	mpsKeyTagManagementDispatcher = "enable_tag_management"
	mpsKeyBatchSize               = "event_batch_size"
	mpsKeyRefreshMinutes          = "minutes_between_refresh"
	mpsKeyMaxQueueSize            = "offline_dispatch_limit"
	mpsKeyExpirationDays          = "dispatch_expiration"
	mpsKeyBatterySaver            = "battery_saver"
	mpsKeyWifiOnly                = "wifi_only_sending"
	mpsKeyLogLevel                = "override_log"
	mpsKeyIsEnabled               = "_is_enabled"

	mpsVersion = "5"
)

var (
	scriptPattern = regexp.MustCompile(`(?s)<script([^>]*)>(.*?)</script>`)
	varPattern    = regexp.MustCompile(`;? *var +\w+ *= *`)
)

// IsHTML reports whether a fetched document looks like a published HTML page
// rather than a JSON settings document.
func IsHTML(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	return strings.HasPrefix(trimmed, "<")
}

// extractMPS returns the JavaScript object assigned to "var mps" inside an
// inline script, or false when none exists.
func extractMPS(html string) (string, bool) {
	for _, script := range scriptPattern.FindAllStringSubmatch(html, -1) {
		if strings.Contains(strings.ToLower(script[1]), "src") {
			continue
		}
		js := script[2]

		start, end := -1, -1
		for _, loc := range varPattern.FindAllStringIndex(js, -1) {
			declaration := js[loc[0]:loc[1]]
			if start == -1 && strings.Contains(strings.ToLower(declaration), "mps") {
				start = loc[1]
			} else if start != -1 && end == -1 {
				end = loc[0]
			}
		}
		if start == -1 {
			continue
		}
		if end == -1 {
			end = len(js)
		}
		return strings.TrimRight(strings.TrimSpace(js[start:end]), ";"), true
	}
	return "", false
}

// MergeMobilePublishSettings applies the version 5 publish settings embedded
// in an HTML page over base.
func MergeMobilePublishSettings(base *LibrarySettings, html []byte) (*LibrarySettings, error) {
	raw, ok := extractMPS(string(html))
	if !ok {
		return nil, errors.MalformedError("no publish settings found in document", nil)
	}

	var versions map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &versions); err != nil {
		return nil, errors.MalformedError("invalid publish settings object", err)
	}

	current, ok := versions[mpsVersion]
	if !ok {
		return nil, errors.MalformedError("publish settings have no version "+mpsVersion, nil)
	}

	var values map[string]interface{}
	if err := json.Unmarshal(current, &values); err != nil {
		return nil, errors.MalformedError("invalid publish settings values", err)
	}

	merged := base.Clone()
	applyMPS(merged, values)
	return merged, nil
}

func applyMPS(s *LibrarySettings, values map[string]interface{}) {
	if b, ok := looseBool(values[mpsKeyCollectDispatcher]); ok {
		s.CollectDispatcherEnabled = b
	}
	if b, ok := looseBool(values[mpsKeyTagManagementDispatcher]); ok {
		s.TagManagementDispatcherEnabled = b
	}
	if f, ok := looseFloat(values[mpsKeyBatchSize]); ok && f >= 0 {
		s.Batching.BatchSize = int(f)
		if s.Batching.BatchSize > MaxBatchSize {
			s.Batching.BatchSize = MaxBatchSize
		}
	}
	if f, ok := looseFloat(values[mpsKeyMaxQueueSize]); ok {
		s.Batching.MaxQueueSize = int(f)
	}
	if f, ok := looseFloat(values[mpsKeyExpirationDays]); ok && f >= 0 {
		s.Batching.Expiration = time.Duration(f * float64(24*time.Hour))
	}
	if b, ok := looseBool(values[mpsKeyBatterySaver]); ok {
		s.BatterySaver = b
	}
	if b, ok := looseBool(values[mpsKeyWifiOnly]); ok {
		s.WifiOnly = b
	}
	if f, ok := looseFloat(values[mpsKeyRefreshMinutes]); ok && f >= 0 {
		s.RefreshInterval = time.Duration(f * float64(time.Minute))
	}
	if v, present := values[mpsKeyLogLevel]; present {
		if level, ok := ParseLogLevel(describe(v)); ok {
			s.LogLevel = level
		}
	}
	if b, ok := looseBool(values[mpsKeyIsEnabled]); ok {
		s.DisableLibrary = !b
	}
}
