package kv

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buymove/buymove-client/pkg/natsutil/natstest"
)

// exerciseStore runs the behaviour every Store must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "bm_token")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "bm_token", []byte(`"abc"`)))
	got, err := s.Get(ctx, "bm_token")
	require.NoError(t, err)
	assert.Equal(t, `"abc"`, string(got))

	require.NoError(t, s.Set(ctx, "bm_token", []byte(`"def"`)))
	got, err = s.Get(ctx, "bm_token")
	require.NoError(t, err)
	assert.Equal(t, `"def"`, string(got), "writes replace the whole value")

	require.NoError(t, s.Delete(ctx, "bm_token"))
	_, err = s.Get(ctx, "bm_token")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(ctx, "bm_token"), "deleting a missing key is not an error")

	type draft struct {
		ID    string `json:"id"`
		Price string `json:"price"`
	}
	list := []draft{{"b", "10"}, {"a", "R$ 10.000,00"}}
	require.NoError(t, SetJSON(ctx, s, "bm_vehicle_list", list))
	back, err := GetJSON[[]draft](ctx, s, "bm_vehicle_list")
	require.NoError(t, err)
	assert.Equal(t, list, back)
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemoryCopiesValues(t *testing.T) {
	m := NewMemory()
	buf := []byte("abc")
	require.NoError(t, m.Set(context.Background(), "k", buf))
	buf[0] = 'x'
	got, _ := m.Get(context.Background(), "k")
	assert.Equal(t, "abc", string(got))
}

func TestFile(t *testing.T) {
	f, err := NewFile(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, f)
}

func TestFileRejectsPathKeys(t *testing.T) {
	f, err := NewFile(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, f.Set(context.Background(), "../escape", []byte("x")))
}

func TestFilePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	a, err := NewFile(dir)
	require.NoError(t, err)
	require.NoError(t, a.Set(ctx, "bm_user", []byte(`{"id":"u1"}`)))

	b, err := NewFile(dir)
	require.NoError(t, err)
	got, err := b.Get(ctx, "bm_user")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"u1"}`, string(got))
}

func TestSQLDrivers(t *testing.T) {
	for _, driver := range []string{"sqlite", "sqlite3"} {
		t.Run(driver, func(t *testing.T) {
			s, err := OpenSQL(context.Background(), driver, filepath.Join(t.TempDir(), "kv.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			assert.Equal(t, driver, s.Driver())
			exerciseStore(t, s)
		})
	}
}

func TestNATS(t *testing.T) {
	_, nc := natstest.Start(t)
	s, err := NewNATS(context.Background(), nc, "")
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(ctx, Options{Driver: "file", Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &File{}, s)
	assert.NoError(t, Close(s))

	s, err = Open(ctx, Options{Driver: "SQLITE", Path: filepath.Join(t.TempDir(), "kv.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQL{}, s)
	assert.NoError(t, Close(s))

	_, err = Open(ctx, Options{Driver: "nats"})
	assert.Error(t, err)

	_, err = Open(ctx, Options{Driver: "redis"})
	assert.Error(t, err)
}

func TestGetJSONDecodeError(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Set(context.Background(), "k", []byte("{not json")))
	_, err := GetJSON[map[string]any](context.Background(), m, "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}
