// Package collectors contribute contextual data to every tracked dispatch.
package collectors

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"runtime"

	"analytics-sdk/internal/common/utils"
	"analytics-sdk/internal/dispatch"
)

// Collector returns data merged into each dispatch payload.
type Collector interface {
	Name() string
	Enabled() bool
	Collect(ctx context.Context) (map[string]interface{}, error)
}

// Library identification.
const (
	LibraryName    = "go"
	LibraryVersion = "1.0.0"
)

const (
	KeyLibraryName    = "tealium_library_name"
	KeyLibraryVersion = "tealium_library_version"
	KeyRandom         = "tealium_random"

	KeyTimestamp       = "timestamp"
	KeyTimestampLocal  = "timestamp_local"
	KeyTimestampOffset = "timestamp_offset"
	KeyTimestampUnix   = "timestamp_unix"

	KeyOSName    = "os_name"
	KeyPlatform  = "platform"
	KeyCPUType   = "device_cputype"
	KeyRuntime   = "device_runtime"
	KeySessionID = "tealium_session_id"
)

// Account identifies the data destination.
type Account struct {
	Account     string
	Profile     string
	Environment string
	DataSource  string
}

// Tealium adds the account identity and library information.
type Tealium struct {
	account Account
	random  func() string
}

func NewTealium(account Account) *Tealium {
	return &Tealium{account: account, random: randomDigits}
}

func (c *Tealium) Name() string  { return "tealium" }
func (c *Tealium) Enabled() bool { return true }

func (c *Tealium) Collect(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{
		dispatch.KeyAccount:     c.account.Account,
		dispatch.KeyProfile:     c.account.Profile,
		dispatch.KeyEnvironment: c.account.Environment,
		dispatch.KeyDataSource:  c.account.DataSource,
		KeyLibraryName:          LibraryName,
		KeyLibraryVersion:       LibraryVersion,
		KeyRandom:               c.random(),
	}, nil
}

func randomDigits() string {
	return fmt.Sprintf("%016d", rand.Int63n(1e16))
}

// Time adds the current time in several formats.
type Time struct {
	clock utils.Clock
}

func NewTime(clock utils.Clock) *Time {
	if clock == nil {
		clock = utils.SystemClock
	}
	return &Time{clock: clock}
}

func (c *Time) Name() string  { return "time" }
func (c *Time) Enabled() bool { return true }

func (c *Time) Collect(ctx context.Context) (map[string]interface{}, error) {
	now := c.clock()
	_, offset := now.Zone()
	return map[string]interface{}{
		KeyTimestamp:              now.UTC().Format("2006-01-02T15:04:05Z"),
		KeyTimestampLocal:         now.Format("2006-01-02T15:04:05"),
		KeyTimestampOffset:        fmt.Sprintf("%d", offset/3600),
		KeyTimestampUnix:          now.Unix(),
		dispatch.KeyTimestampUnix: now.UnixMilli(),
	}, nil
}

// Device describes the host running the SDK.
type Device struct {
	hostname string
}

// NewDevice reads the hostname once.
func NewDevice() *Device {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &Device{hostname: host}
}

func (c *Device) Name() string  { return "device" }
func (c *Device) Enabled() bool { return true }

func (c *Device) Collect(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{
		dispatch.KeyDevice:             c.hostname,
		dispatch.KeyDeviceArchitecture: runtime.GOARCH,
		KeyCPUType:                     runtime.GOARCH,
		KeyOSName:                      runtime.GOOS,
		KeyPlatform:                    "go",
		KeyRuntime:                     runtime.Version(),
	}, nil
}
