package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/aq-dashboard-service/internal/domain"
)

func table(name string) *domain.NormalizedTable {
	return &domain.NormalizedTable{Spec: domain.DatasetSpec{Name: name}}
}

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache(10)
	c.put("city@1", table("city"))

	got, ok := c.get("city@1")
	require.True(t, ok)
	assert.Equal(t, "city", got.Spec.Name)

	_, ok = c.get("city@2")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)
	c.put("a@1", table("a"))
	c.put("b@1", table("b"))
	c.put("c@1", table("c"))

	_, ok := c.get("a@1")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = c.get("c@1")
	assert.True(t, ok)
	assert.Equal(t, 2, c.len())
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache(2)
	c.put("a@1", table("a"))
	c.put("b@1", table("b"))
	c.get("a@1")
	c.put("c@1", table("c"))

	_, ok := c.get("a@1")
	assert.True(t, ok, "recently read entry survives")
	_, ok = c.get("b@1")
	assert.False(t, ok)
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)
	c.put("a@1", table("a"))
	c.put("a@1", table("a2"))

	got, ok := c.get("a@1")
	require.True(t, ok)
	assert.Equal(t, "a2", got.Spec.Name)
	assert.Equal(t, 1, c.len())
}

func TestLRUCache_RemovePrefix(t *testing.T) {
	c := newLRUCache(10)
	c.put("city@1", table("city"))
	c.put("city@2", table("city"))
	c.put("county@1", table("county"))

	assert.Equal(t, 2, c.removePrefix("city@"))
	assert.Equal(t, 1, c.len())
	_, ok := c.get("county@1")
	assert.True(t, ok)

	// The list stays consistent after removals.
	c.put("a@1", table("a"))
	c.put("b@1", table("b"))
	assert.Equal(t, 3, c.len())
}
