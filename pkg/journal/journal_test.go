package journal

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Number int
	Seed   string
	Bytes  []byte
}

func newJournal[T any](t *testing.T) Journal[T] {
	t.Helper()

	j, err := Create[T](filepath.Join(t.TempDir(), "journal.gob"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	return j
}

func TestJournal(t *testing.T) {
	t.Run("Append and Get", func(t *testing.T) {
		j := newJournal[string](t)

		require.NoError(t, j.Append("first"))
		require.NoError(t, j.Append("second"))

		val, err := j.Get(0)
		require.NoError(t, err)
		require.Equal(t, "first", val)

		val, err = j.Get(1)
		require.NoError(t, err)
		require.Equal(t, "second", val)

		val, err = j.Get(3)
		require.Error(t, err)
		require.Equal(t, "", val)
	})

	t.Run("Len returns correct count", func(t *testing.T) {
		j := newJournal[int](t)

		require.Equal(t, uint64(0), j.Len())
		require.NoError(t, j.Append(1))
		require.NoError(t, j.Append(2))
		require.Equal(t, uint64(2), j.Len())
	})

	t.Run("Range iterates all items in order", func(t *testing.T) {
		j := newJournal[int](t)

		for i := range 5 {
			require.NoError(t, j.Append(i*10))
		}

		var got []int
		err := j.Range(func(index uint64, item int) error {
			got = append(got, item)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []int{0, 10, 20, 30, 40}, got)
	})

	t.Run("Range callback error stops iteration", func(t *testing.T) {
		j := newJournal[int](t)

		for i := range 5 {
			require.NoError(t, j.Append(i))
		}

		boom := errors.New("boom")
		visited := 0
		err := j.Range(func(index uint64, item int) error {
			visited++
			if index == 2 {
				return boom
			}
			return nil
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 3, visited)
	})

	t.Run("struct records do not leak fields between items", func(t *testing.T) {
		j := newJournal[record](t)

		require.NoError(t, j.Append(record{Number: 1, Seed: "a.png", Bytes: []byte{1}}))
		require.NoError(t, j.Append(record{Number: 2}))

		second, err := j.Get(1)
		require.NoError(t, err)
		assert.Equal(t, record{Number: 2}, second)
	})

	t.Run("concurrent appends are all recorded", func(t *testing.T) {
		j := newJournal[int](t)

		var wg sync.WaitGroup
		for i := range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, j.Append(i))
			}()
		}
		wg.Wait()

		seen := make(map[int]bool)
		require.NoError(t, j.Range(func(_ uint64, item int) error {
			seen[item] = true
			return nil
		}))
		assert.Len(t, seen, 50)
	})
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.gob")

	j, err := Create[record](path)
	require.NoError(t, err)
	require.NoError(t, j.Append(record{Number: 7, Seed: "inputs/x.jpg"}))
	require.NoError(t, j.Append(record{Number: 8, Seed: "inputs/y"}))
	require.NoError(t, j.Close())

	reopened, err := Open[record](path)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, uint64(2), reopened.Len())

	item, err := reopened.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "inputs/y", item.Seed)

	require.ErrorIs(t, reopened.Append(record{}), ErrReadOnly)
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open[int](filepath.Join(t.TempDir(), "missing.gob"))
	require.Error(t, err)
}

func TestClose_Twice(t *testing.T) {
	j := newJournal[int](t)

	require.NoError(t, j.Close())
	require.NoError(t, j.Close())
	require.ErrorIs(t, j.Append(1), ErrReadOnly)
}

func BenchmarkAppend(b *testing.B) {
	j, err := Create[record](filepath.Join(b.TempDir(), "journal.gob"))
	require.NoError(b, err)
	defer j.Close()

	item := record{Number: 1, Seed: "inputs/seed.png", Bytes: make([]byte, 64)}

	b.ResetTimer()

	for range b.N {
		_ = j.Append(item)
	}
}
