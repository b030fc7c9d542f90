package feedback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBackend struct {
	data    map[string][]byte
	getErr  error
	putErr  error
	putKeys []string
}

func newMemBackend() *memBackend { return &memBackend{data: map[string][]byte{}} }

func (m *memBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memBackend) Put(_ context.Context, key string, value []byte) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.putKeys = append(m.putKeys, key)
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func TestRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	s := NewStore(b, "", nil)

	_, err := s.Record(ctx, "Time Blocking", true)
	require.NoError(t, err)

	_, err = s.Record(ctx, "Pomodoro", true)
	require.NoError(t, err)
	e, err := s.Record(ctx, "Pomodoro", false)
	require.NoError(t, err)
	assert.Equal(t, Entry{Likes: 1, Dislikes: 1}, e)

	snap := s.Load(ctx)
	assert.Equal(t, Entry{Likes: 1, Dislikes: 1}, snap.Get("Pomodoro"))
	assert.Equal(t, Entry{Likes: 1}, snap.Get("Time Blocking"), "other entries untouched")
	assert.Equal(t, Entry{}, snap.Get("Never Voted"))
	assert.Equal(t, 0, snap.Score("Pomodoro"))
}

func TestRecordWritesThrough(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	s := NewStore(b, KeyFor("user-1"), nil)

	_, err := s.Record(ctx, "Pomodoro", true)
	require.NoError(t, err)
	_, err = s.Record(ctx, "Pomodoro", true)
	require.NoError(t, err)

	assert.Equal(t, []string{KeyFor("user-1"), KeyFor("user-1")}, b.putKeys)
	assert.JSONEq(t, `{"Pomodoro":{"likes":2,"dislikes":0}}`, string(b.data[KeyFor("user-1")]))
}

func TestLoadFailsSoft(t *testing.T) {
	ctx := context.Background()

	tests := map[string]*memBackend{
		"missing":        newMemBackend(),
		"corrupt":        {data: map[string][]byte{StorageKey: []byte("{not json")}},
		"wrong shape":    {data: map[string][]byte{StorageKey: []byte(`["a","b"]`)}},
		"negative count": {data: map[string][]byte{StorageKey: []byte(`{"A":{"likes":-1,"dislikes":0}}`)}},
		"backend error":  {data: map[string][]byte{}, getErr: errors.New("disk on fire")},
	}
	for name, b := range tests {
		t.Run(name, func(t *testing.T) {
			snap := NewStore(b, "", nil).Load(ctx)
			assert.NotNil(t, snap)
			assert.Empty(t, snap)
		})
	}
}

func TestRecordOverCorruptDataStartsFresh(t *testing.T) {
	ctx := context.Background()
	b := &memBackend{data: map[string][]byte{StorageKey: []byte("garbage")}}
	s := NewStore(b, "", nil)

	e, err := s.Record(ctx, "Pomodoro", false)
	require.NoError(t, err)
	assert.Equal(t, Entry{Dislikes: 1}, e)
}

func TestRecordErrors(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newMemBackend(), "", nil)
	_, err := s.Record(ctx, "  ", true)
	assert.ErrorIs(t, err, ErrEmptyTechnique)

	b := newMemBackend()
	b.putErr = errors.New("read-only")
	_, err = NewStore(b, "", nil).Record(ctx, "Pomodoro", true)
	assert.Error(t, err)
}

func TestFileBackend(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "feedback")
	b := NewFileBackend(dir)

	_, ok, err := b.Get(ctx, KeyFor("u:1"))
	require.NoError(t, err)
	assert.False(t, ok)

	s := NewStore(b, KeyFor("u:1"), nil)
	_, err = s.Record(ctx, "Flowtime", true)
	require.NoError(t, err)

	reopened := NewStore(NewFileBackend(dir), KeyFor("u:1"), nil)
	assert.Equal(t, Entry{Likes: 1}, reopened.Load(ctx).Get("Flowtime"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are renamed away")
}
