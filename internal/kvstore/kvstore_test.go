package kvstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()

	store.Save("test.key", payload{Name: "a", Count: 3})

	var got payload
	require.True(t, store.Load("test.key", &got))
	assert.Equal(t, payload{Name: "a", Count: 3}, got)

	// Save replaces the previous value
	store.Save("test.key", payload{Name: "b", Count: 1})
	require.True(t, store.Load("test.key", &got))
	assert.Equal(t, "b", got.Name)
}

func TestMemoryStoreMissingKey(t *testing.T) {
	store := NewMemoryStore()

	got := payload{Name: "default"}
	assert.False(t, store.Load("absent", &got))
	// Defaults stay untouched on a miss
	assert.Equal(t, "default", got.Name)
}

func TestMemoryStoreCorruptValue(t *testing.T) {
	store := NewMemoryStore()
	store.data["broken"] = "{not json"

	got := payload{Name: "default"}
	assert.False(t, store.Load("broken", &got))
	assert.Equal(t, "default", got.Name)
}
