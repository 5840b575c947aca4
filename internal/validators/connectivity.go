package validators

import (
	"analytics-sdk/internal/dispatch"
	"analytics-sdk/internal/network"
)

const ConnectivityName = "connectivity"

// Connectivity queues while offline, or while off wifi when the settings
// ask for wifi-only sending.
type Connectivity struct {
	connectivity network.Connectivity
	settings     SettingsSource
}

func NewConnectivity(c network.Connectivity, s SettingsSource) *Connectivity {
	return &Connectivity{connectivity: c, settings: s}
}

func (v *Connectivity) Name() string  { return ConnectivityName }
func (v *Connectivity) Enabled() bool { return true }

func (v *Connectivity) ShouldQueue(d *dispatch.Dispatch) bool {
	if v.settings.Settings().WifiOnly {
		return !(v.connectivity.IsConnected() && v.connectivity.IsConnectedWifi())
	}
	return !v.connectivity.IsConnected()
}

func (v *Connectivity) ShouldDrop(d *dispatch.Dispatch) bool { return false }
