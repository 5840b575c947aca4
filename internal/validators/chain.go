// Package validators decides, per dispatch, whether to drop it, hold it in
// the queue or let it through.
package validators

import (
	"github.com/samber/lo"

	"analytics-sdk/internal/dispatch"
	"analytics-sdk/internal/settings"
)

// Validator vetoes sending. ShouldQueue receives nil during revalidation,
// when the question is whether queued dispatches may be released.
type Validator interface {
	Name() string
	Enabled() bool
	ShouldQueue(d *dispatch.Dispatch) bool
	ShouldDrop(d *dispatch.Dispatch) bool
}

// SettingsSource provides the current library settings.
type SettingsSource interface {
	Settings() *settings.LibrarySettings
}

// Chain evaluates validators in order.
type Chain struct {
	validators []Validator
}

func NewChain(validators ...Validator) *Chain {
	return &Chain{validators: lo.Filter(validators, func(v Validator, _ int) bool { return v != nil })}
}

// Add appends v to the chain. Not safe for use after the pipeline starts.
func (c *Chain) Add(v Validator) {
	if v != nil {
		c.validators = append(c.validators, v)
	}
}

// Names lists the validators in evaluation order.
func (c *Chain) Names() []string {
	return lo.Map(c.validators, func(v Validator, _ int) string { return v.Name() })
}

// ShouldDrop reports whether any enabled validator discards d.
func (c *Chain) ShouldDrop(d *dispatch.Dispatch) bool {
	return lo.ContainsBy(c.validators, func(v Validator) bool {
		return v.Enabled() && v.ShouldDrop(d)
	})
}

// ShouldQueue reports whether any enabled validator other than the one
// named exclude wants d held back.
func (c *Chain) ShouldQueue(d *dispatch.Dispatch, exclude string) bool {
	return lo.ContainsBy(c.validators, func(v Validator) bool {
		return v.Enabled() && v.Name() != exclude && v.ShouldQueue(d)
	})
}
