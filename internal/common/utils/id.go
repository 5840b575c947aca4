// Package utils provides utility functions shared across the pipeline.
//
// This package contains common utilities for ID generation, retry logic,
// interval parsing, and other helpers used throughout the SDK.
//
// Features:
//   - Collision-resistant dispatch IDs (cuid)
//   - Anonymous visitor IDs (UUID v4 without separators)
//   - Attempt-bounded retries with a final unbounded attempt
//   - Extended duration parsing (days, weeks) and settings interval parsing
package utils

import (
	"strings"

	"github.com/google/uuid"
	"github.com/lucsky/cuid"
)

// GenerateDispatchID returns a new identifier for a dispatch.
//
// IDs come from cuid so they are safe to generate concurrently on many hosts
// and sort roughly by creation time.
func GenerateDispatchID() string {
	return cuid.New()
}

// GenerateVisitorID returns a new anonymous visitor ID.
//
// The ID is a random UUID v4 rendered as 32 lowercase hex characters with the
// dashes removed, the format the collection endpoints expect.
func GenerateVisitorID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GenerateRequestID returns a UUID string used to correlate HTTP requests.
func GenerateRequestID() string {
	return uuid.NewString()
}
