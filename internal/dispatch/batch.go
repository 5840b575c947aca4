package dispatch

import "github.com/samber/lo"

// SharedKeys are hoisted into the shared section of a batch.
var SharedKeys = []string{
	KeyAccount,
	KeyProfile,
	KeyEnvironment,
	KeyDataSource,
	KeyVisitorID,
	KeyDevice,
	KeyDeviceArchitecture,
	KeyDeviceResolution,
}

// Batch is the wire form of several dispatches sent together. Keys from
// SharedKeys appear once in Shared; the value is taken from the first event
// carrying the key and the key is removed from every event.
type Batch struct {
	Shared map[string]interface{}   `json:"shared"`
	Events []map[string]interface{} `json:"events"`
}

// NewBatch composes a batch. Returns nil when ds is empty.
// The dispatches themselves are not modified.
func NewBatch(ds []*Dispatch) *Batch {
	if len(ds) == 0 {
		return nil
	}

	batch := &Batch{
		Shared: make(map[string]interface{}),
		Events: make([]map[string]interface{}, 0, len(ds)),
	}

	for _, d := range ds {
		event := d.Payload()
		for _, key := range SharedKeys {
			value, ok := event[key]
			if !ok {
				continue
			}
			if _, taken := batch.Shared[key]; !taken {
				batch.Shared[key] = value
			}
			delete(event, key)
		}
		batch.Events = append(batch.Events, event)
	}

	return batch
}

// Payload returns the batch as a JSON-ready map.
func (b *Batch) Payload() map[string]interface{} {
	events := make([]interface{}, len(b.Events))
	for i, e := range b.Events {
		events[i] = e
	}
	return map[string]interface{}{
		"shared": b.Shared,
		"events": events,
	}
}

// Reconstitute merges the shared section back into each event. When hoisted
// values were identical across events this reproduces the original payloads.
func (b *Batch) Reconstitute() []map[string]interface{} {
	out := make([]map[string]interface{}, len(b.Events))
	for i, e := range b.Events {
		merged := make(map[string]interface{}, len(e)+len(b.Shared))
		for k, v := range b.Shared {
			merged[k] = v
		}
		for k, v := range e {
			merged[k] = v
		}
		out[i] = merged
	}
	return out
}

// Chunk splits ds into consecutive slices of at most size elements.
// A size below one is treated as one.
func Chunk(ds []*Dispatch, size int) [][]*Dispatch {
	if size < 1 {
		size = 1
	}
	return lo.Chunk(ds, size)
}
