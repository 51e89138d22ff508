package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetSetAndExpiry(t *testing.T) {
	current := time.Unix(1000, 0)
	c := New[string, int](4, time.Minute)
	c.now = func() time.Time { return current }

	c.Set("a", 1)

	got, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, got)

	current = current.Add(2 * time.Minute)

	_, ok = c.Get("a")
	require.False(t, ok)
	require.Equal(t, 0, c.Size())
}

func TestCapacityEviction(t *testing.T) {
	current := time.Unix(1000, 0)
	c := New[string, int](2, time.Minute)
	c.now = func() time.Time { return current }

	c.Set("a", 1)
	current = current.Add(time.Second)
	c.Set("b", 2)
	current = current.Add(time.Second)
	c.Set("c", 3)

	require.Equal(t, 2, c.Size())

	// "a" expires first, so it is the eviction victim.
	_, ok := c.Get("a")
	require.False(t, ok)

	_, ok = c.Get("b")
	require.True(t, ok)
	_, ok = c.Get("c")
	require.True(t, ok)
}

func TestZeroCapacityDisables(t *testing.T) {
	c := New[string, int](0, time.Minute)
	c.Set("a", 1)

	_, ok := c.Get("a")
	require.False(t, ok)
	require.Equal(t, 0, c.Size())
}

func TestClear(t *testing.T) {
	c := New[string, int](4, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Clear()
	require.Equal(t, 0, c.Size())
}

func TestSetOverwritesWithoutEviction(t *testing.T) {
	c := New[string, int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)

	require.Equal(t, 2, c.Size())
	got, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 10, got)
}
