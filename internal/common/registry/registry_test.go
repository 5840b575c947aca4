package registry

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analytics-sdk/internal/common/errors"
)

type namedFactory string

func (f namedFactory) GetType() string { return string(f) }

func TestRegistry(t *testing.T) {
	t.Run("register and get", func(t *testing.T) {
		r := New[namedFactory]()
		require.NoError(t, r.Register("b", "b"))
		require.NoError(t, r.Register("a", "a"))

		f, err := r.Get("a")
		require.NoError(t, err)
		assert.Equal(t, "a", f.GetType())
		assert.Equal(t, []string{"b", "a"}, r.Names())
		assert.Equal(t, []string{"a", "b"}, r.GetAvailableTypes())
		assert.True(t, r.IsRegistered("b"))
		assert.Equal(t, 2, r.Count())
	})

	t.Run("duplicate rejected", func(t *testing.T) {
		r := New[namedFactory]()
		require.NoError(t, r.Register("a", "a"))
		err := r.Register("a", "other")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeValidation))

		f, _ := r.Get("a")
		assert.Equal(t, namedFactory("a"), f)
	})

	t.Run("name pattern enforced", func(t *testing.T) {
		r := New[namedFactory](WithNamePattern(regexp.MustCompile(`^[a-z]+$`)))
		assert.Error(t, r.Register("Upper", "x"))
		assert.NoError(t, r.Register("lower", "x"))
		assert.Panics(t, func() { r.MustRegister("bad name", "x") })
	})

	t.Run("missing factory", func(t *testing.T) {
		r := New[namedFactory]()
		_, err := r.Get("nope")
		assert.True(t, errors.IsType(err, errors.ErrTypeNotFound))
	})
}
