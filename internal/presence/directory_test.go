package presence

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/devaloi/roomrelay/internal/domain"
)

func TestRegisterLookup(t *testing.T) {
	t.Parallel()
	d := NewDirectory()
	for i := 0; i < 20; i++ {
		require.NoError(t, d.Register(fmt.Sprintf("user%02d", i), fmt.Sprintf("conn%02d", i)))
	}
	for i := 0; i < 20; i++ {
		id, ok := d.Lookup(fmt.Sprintf("user%02d", i))
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("conn%02d", i), id)
	}
	_, ok := d.Lookup("nobody")
	require.False(t, ok)
}

func TestRegisterNameInUse(t *testing.T) {
	t.Parallel()
	d := NewDirectory()
	require.NoError(t, d.Register("alice", "c1"))

	err := d.Register("alice", "c2")
	require.ErrorIs(t, err, domain.ErrNameInUse)

	id, _ := d.Lookup("alice")
	require.Equal(t, "c1", id)
	_, ok := d.UsernameOf("c2")
	require.False(t, ok)
	require.Equal(t, 1, d.Len())

	// Same pair again is accepted.
	require.NoError(t, d.Register("alice", "c1"))
}

func TestRegisterCaseSensitive(t *testing.T) {
	t.Parallel()
	d := NewDirectory()
	require.NoError(t, d.Register("alice", "c1"))
	require.NoError(t, d.Register("Alice", "c2"))
	require.Equal(t, []string{"Alice", "alice"}, d.ListUsernames())
}

func TestUnregister(t *testing.T) {
	t.Parallel()
	d := NewDirectory()
	require.NoError(t, d.Register("alice", "c1"))

	name, ok := d.Unregister("c1")
	require.True(t, ok)
	require.Equal(t, "alice", name)
	_, ok = d.Lookup("alice")
	require.False(t, ok)

	// Idempotent.
	_, ok = d.Unregister("c1")
	require.False(t, ok)
	_, ok = d.Unregister("unknown")
	require.False(t, ok)

	require.NoError(t, d.Register("alice", "c9"))
}

func TestListUsernamesSorted(t *testing.T) {
	t.Parallel()
	d := NewDirectory()
	for i, n := range []string{"carol", "alice", "bob"} {
		require.NoError(t, d.Register(n, fmt.Sprint(i)))
	}
	require.Equal(t, []string{"alice", "bob", "carol"}, d.ListUsernames())
	require.Empty(t, NewDirectory().ListUsernames())
}

func TestConcurrentRegisterSameName(t *testing.T) {
	t.Parallel()
	d := NewDirectory()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if d.Register("alice", fmt.Sprintf("c%d", i)) == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
	require.Equal(t, 1, d.Len())
}
