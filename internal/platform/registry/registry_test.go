package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCreate(t *testing.T) {
	r := New[int, string]("formatter")
	r.Register("decimal", func(n int) (string, error) {
		return fmt.Sprintf("%d", n), nil
	})
	r.Register("hex", func(n int) (string, error) {
		return fmt.Sprintf("%x", n), nil
	})

	out, err := r.Create("hex", 255)
	require.NoError(t, err)
	assert.Equal(t, "ff", out)
}

func TestRegistryCreateUnknownProvider(t *testing.T) {
	r := New[int, string]("formatter")
	r.Register("decimal", func(n int) (string, error) {
		return fmt.Sprintf("%d", n), nil
	})

	_, err := r.Create("binary", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "formatter")
	assert.Contains(t, err.Error(), "decimal")
}

func TestRegistryNamesSorted(t *testing.T) {
	r := New[int, int]("noop")
	r.Register("zebra", func(n int) (int, error) { return n, nil })
	r.Register("alpha", func(n int) (int, error) { return n, nil })

	assert.Equal(t, []string{"alpha", "zebra"}, r.Names())
}

func TestRegistryRegisterOverwrites(t *testing.T) {
	r := New[int, string]("formatter")
	r.Register("fmt", func(n int) (string, error) { return "old", nil })
	r.Register("fmt", func(n int) (string, error) { return "new", nil })

	out, err := r.Create("fmt", 0)
	require.NoError(t, err)
	assert.Equal(t, "new", out)
}
