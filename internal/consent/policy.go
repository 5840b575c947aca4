// Package consent tracks the user's consent decision and applies a consent
// policy to the pipeline: it vetoes or delays dispatches and adds the consent
// state to every payload.
package consent

import (
	"sort"
	"strings"
	"time"

	"analytics-sdk/internal/common/errors"
)

// Status is the user's consent decision.
type Status string

const (
	StatusUnknown      Status = "unknown"
	StatusConsented    Status = "consented"
	StatusNotConsented Status = "notConsented"
)

// ParseStatus reads a status case-insensitively. Anything unrecognized is
// StatusUnknown.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "consented":
		return StatusConsented
	case "notconsented", "not_consented":
		return StatusNotConsented
	default:
		return StatusUnknown
	}
}

// Category is a purpose the user can consent to.
type Category string

const (
	CategoryAffiliates      Category = "affiliates"
	CategoryAnalytics       Category = "analytics"
	CategoryBigData         Category = "big_data"
	CategoryCDP             Category = "cdp"
	CategoryCookieMatch     Category = "cookiematch"
	CategoryCRM             Category = "crm"
	CategoryDisplayAds      Category = "display_ads"
	CategoryEmail           Category = "email"
	CategoryEngagement      Category = "engagement"
	CategoryMobile          Category = "mobile"
	CategoryMonitoring      Category = "monitoring"
	CategoryPersonalization Category = "personalization"
	CategorySearch          Category = "search"
	CategorySocial          Category = "social"
	CategoryMisc            Category = "misc"
)

// AllCategories lists every known category.
var AllCategories = []Category{
	CategoryAffiliates, CategoryAnalytics, CategoryBigData, CategoryCDP,
	CategoryCookieMatch, CategoryCRM, CategoryDisplayAds, CategoryEmail,
	CategoryEngagement, CategoryMobile, CategoryMonitoring, CategoryPersonalization,
	CategorySearch, CategorySocial, CategoryMisc,
}

// ParseCategories keeps the recognized names, deduplicated and sorted.
func ParseCategories(names []string) []Category {
	known := make(map[Category]bool, len(AllCategories))
	for _, c := range AllCategories {
		known[c] = true
	}
	seen := make(map[Category]bool)
	var out []Category
	for _, n := range names {
		c := Category(strings.ToLower(strings.TrimSpace(n)))
		if known[c] && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Preferences is a snapshot of the user's decision.
type Preferences struct {
	Status     Status
	Categories []Category
}

func (p Preferences) categoryNames() []string {
	names := make([]string, 0, len(p.Categories))
	for _, c := range p.Categories {
		names = append(names, string(c))
	}
	return names
}

// Payload keys contributed by the consent collector.
const (
	KeyPolicy     = "policy"
	KeyStatus     = "consent_status"
	KeyCategories = "consent_categories"
	KeyDoNotSell  = "do_not_sell"
)

// Logging event names.
const (
	EventGrantFullConsent    = "grant_full_consent"
	EventGrantPartialConsent = "grant_partial_consent"
	EventDeclineConsent      = "decline_consent"
)

// Policy is a consent regime. Policies are stateless; the current
// preferences are passed to every call.
type Policy interface {
	Name() string
	ShouldQueue(p Preferences) bool
	ShouldDrop(p Preferences) bool
	StatusInfo(p Preferences) map[string]interface{}
	DefaultExpiry() time.Duration
	LoggingEnabled() bool
	LoggingEventName(p Preferences) string
}

// NewPolicy returns the policy registered under name ("gdpr" or "ccpa").
func NewPolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gdpr":
		return GDPR{}, nil
	case "ccpa":
		return CCPA{}, nil
	default:
		return nil, errors.ConfigError("unknown consent policy: " + name)
	}
}

// GDPR queues until the user decides and drops everything once they decline.
type GDPR struct{}

func (GDPR) Name() string { return "gdpr" }

func (GDPR) ShouldQueue(p Preferences) bool { return p.Status == StatusUnknown }

func (GDPR) ShouldDrop(p Preferences) bool { return p.Status == StatusNotConsented }

func (GDPR) StatusInfo(p Preferences) map[string]interface{} {
	info := map[string]interface{}{
		KeyPolicy: "gdpr",
		KeyStatus: string(p.Status),
	}
	if len(p.Categories) > 0 {
		info[KeyCategories] = p.categoryNames()
	}
	return info
}

func (GDPR) DefaultExpiry() time.Duration { return 365 * 24 * time.Hour }

func (GDPR) LoggingEnabled() bool { return true }

func (GDPR) LoggingEventName(p Preferences) string {
	if p.Status != StatusConsented {
		return EventDeclineConsent
	}
	if len(p.Categories) == len(AllCategories) {
		return EventGrantFullConsent
	}
	return EventGrantPartialConsent
}

// CCPA never blocks dispatches; it only reports the do-not-sell flag.
type CCPA struct{}

func (CCPA) Name() string { return "ccpa" }

func (CCPA) ShouldQueue(Preferences) bool { return false }

func (CCPA) ShouldDrop(Preferences) bool { return false }

func (CCPA) StatusInfo(p Preferences) map[string]interface{} {
	return map[string]interface{}{
		KeyPolicy:    "ccpa",
		KeyDoNotSell: p.Status == StatusConsented,
	}
}

func (CCPA) DefaultExpiry() time.Duration { return 395 * 24 * time.Hour }

func (CCPA) LoggingEnabled() bool { return false }

func (CCPA) LoggingEventName(p Preferences) string {
	if p.Status == StatusConsented {
		return EventGrantFullConsent
	}
	return EventGrantPartialConsent
}
