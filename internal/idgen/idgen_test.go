package idgen

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequence(t *testing.T) {
	s := NewSequence()
	assert.Equal(t, "1", s.GenerateID())
	assert.Equal(t, "2", s.GenerateID())
	assert.Equal(t, "3", s.GenerateID())
}

func TestSequence_ConcurrentUnique(t *testing.T) {
	s := NewSequence()
	const n = 200
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- s.GenerateID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestUUID(t *testing.T) {
	a := UUID{}.GenerateID()
	b := UUID{}.GenerateID()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}

func TestFunc(t *testing.T) {
	g := Func(func() string { return "fixed" })
	assert.Equal(t, "fixed", g.GenerateID())
}

func TestNew(t *testing.T) {
	g, err := New("")
	require.NoError(t, err)
	assert.IsType(t, UUID{}, g)

	g, err = New("Sequence")
	require.NoError(t, err)
	assert.Equal(t, "1", g.GenerateID())

	_, err = New("snowflake")
	assert.Error(t, err)
}
