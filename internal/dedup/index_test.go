package dedup

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsersLastWriteWins(t *testing.T) {
	for _, buffer := range []int{1, 1000} {
		users, err := OpenUsers(t.TempDir(), buffer)
		require.NoError(t, err)

		require.NoError(t, users.Put(42, "alice"))
		require.NoError(t, users.Put(42, "alice2"))

		type entry struct {
			id   int64
			name string
		}
		var got []entry
		n, err := users.Range(func(id int64, name string) error {
			got = append(got, entry{id, name})
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.Equal(t, []entry{{42, "alice2"}}, got, "buffer size %d", buffer)
		require.NoError(t, users.Close())
	}
}

func TestRangeAscendingWithNegativeKeys(t *testing.T) {
	ix, err := Open(t.TempDir(), "test", 2)
	require.NoError(t, err)
	defer ix.Close()

	for _, k := range []int64{300, -5, 7, 0, -1 << 40, 1 << 40} {
		require.NoError(t, ix.Put(k, []byte{byte(k)}))
	}

	var keys []int64
	require.NoError(t, ix.Range(func(k int64, _ []byte) error {
		keys = append(keys, k)
		return nil
	}))
	assert.Equal(t, []int64{-1 << 40, -5, 0, 7, 300, 1 << 40}, keys)
}

func TestEmptyIndex(t *testing.T) {
	cs, err := OpenChangesets(t.TempDir(), 10)
	require.NoError(t, err)
	defer cs.Close()

	n, err := cs.Range(func(id, uid int64) error {
		t.Errorf("unexpected entry %d -> %d", id, uid)
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, ok, err := cs.Get(1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChangesetsGetBufferedAndFlushed(t *testing.T) {
	cs, err := OpenChangesets(t.TempDir(), 3)
	require.NoError(t, err)
	defer cs.Close()

	require.NoError(t, cs.Put(10, 1))
	require.NoError(t, cs.Put(11, 2))
	uid, ok, err := cs.Get(10)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), uid)

	// third distinct key reaches the buffer limit and flushes
	require.NoError(t, cs.Put(12, 3))
	require.NoError(t, cs.Put(10, 9))

	uid, ok, err = cs.Get(11)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), uid)

	uid, _, err = cs.Get(10)
	require.NoError(t, err)
	assert.Equal(t, int64(9), uid)

	var pairs [][2]int64
	_, err = cs.Range(func(id, uid int64) error {
		pairs = append(pairs, [2]int64{id, uid})
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][2]int64{{10, 9}, {11, 2}, {12, 3}}, pairs)
}

func TestCloseRemovesDirectory(t *testing.T) {
	ix, err := Open(t.TempDir(), "gone", 10)
	require.NoError(t, err)
	require.NoError(t, ix.Put(1, []byte("x")))
	require.NoError(t, ix.Close())

	_, err = os.Stat(ix.dir)
	assert.True(t, os.IsNotExist(err))
}
