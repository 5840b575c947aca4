package dispatch

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	d := NewEvent("purchase", map[string]interface{}{"amount": 10})

	assert.NotEmpty(t, d.ID())
	assert.Equal(t, d.ID(), d.GetString(KeyRequestUUID))
	assert.Equal(t, EventTypeEvent, d.GetString(KeyEventType))
	assert.Equal(t, "purchase", d.GetString(KeyEvent))
	assert.Nil(t, d.Timestamp())
}

func TestNewView(t *testing.T) {
	d := NewView("home", nil)

	assert.Equal(t, EventTypeView, d.GetString(KeyEventType))
	assert.Equal(t, "home", d.GetString(KeyScreenTitle))
}

func TestDispatch_InputIsCopied(t *testing.T) {
	data := map[string]interface{}{"a": 1}
	d := New(data)
	data["a"] = 2

	v, _ := d.Get("a")
	assert.Equal(t, 1, v)
}

func TestDispatch_AddAllCannotReplaceID(t *testing.T) {
	d := New(nil)
	id := d.ID()

	d.AddAll(map[string]interface{}{KeyRequestUUID: "other", "x": "y"})

	assert.Equal(t, id, d.GetString(KeyRequestUUID))
	assert.Equal(t, "y", d.GetString("x"))

	d.Remove("x")
	_, ok := d.Get("x")
	assert.False(t, ok)
}

func TestDispatch_SetTimestampOnce(t *testing.T) {
	d := New(nil)
	d.SetTimestamp(100)
	d.SetTimestamp(200)

	require.NotNil(t, d.Timestamp())
	assert.Equal(t, int64(100), *d.Timestamp())
	assert.Equal(t, int64(100), d.SortKey())
}

func TestDispatch_ConcurrentAccess(t *testing.T) {
	d := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			d.AddAll(map[string]interface{}{"k": i})
		}(i)
		go func() {
			defer wg.Done()
			_ = d.Payload()
		}()
	}
	wg.Wait()

	_, ok := d.Get("k")
	assert.True(t, ok)
}

func TestFromPayload_RestoresID(t *testing.T) {
	ts := int64(42)
	d := FromPayload("", &ts, map[string]interface{}{KeyRequestUUID: "stored-id", "a": "b"})

	assert.Equal(t, "stored-id", d.ID())
	assert.Equal(t, int64(42), d.SortKey())
}

func TestDispatch_MarshalJSON(t *testing.T) {
	d := NewEvent("e", map[string]interface{}{"n": 1})

	raw, err := json.Marshal(d)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "e", decoded[KeyEvent])
	assert.Equal(t, float64(1), decoded["n"])
}
