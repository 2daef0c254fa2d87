package blobstore

import (
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	s, err := New(fsys, "/uploads")
	require.NoError(t, err)
	return s, fsys
}

func TestStageAndOpen(t *testing.T) {
	s, _ := newStore(t)

	key, n, err := s.Stage("report.txt", strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.EqualValues(t, 11, n)
	assert.True(t, strings.HasSuffix(key, "-report.txt"))

	f, info, err := s.Open(key)
	require.NoError(t, err)
	defer f.Close()
	assert.EqualValues(t, 11, info.Size())

	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(body))
}

func TestStageConcurrentSameNameNeverAliases(t *testing.T) {
	s, _ := newStore(t)

	const n = 20
	keys := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key, _, err := s.Stage("same.txt", strings.NewReader("x"))
			assert.NoError(t, err)
			keys <- key
		}()
	}
	wg.Wait()
	close(keys)

	seen := map[string]bool{}
	for k := range keys {
		assert.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
	}
	assert.Len(t, seen, n)
}

func TestRemoveIsIdempotent(t *testing.T) {
	s, fsys := newStore(t)

	key, _, err := s.Stage("a.txt", strings.NewReader("abc"))
	require.NoError(t, err)

	existed, err := s.Remove(key)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.Remove(key)
	require.NoError(t, err)
	assert.False(t, existed)

	p, err := s.Path(key)
	require.NoError(t, err)
	ok, err := afero.Exists(fsys, p)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = s.Open(key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPathRejectsTraversal(t *testing.T) {
	s, _ := newStore(t)
	for _, key := range []string{"", "..", "../etc/passwd", "a/b"} {
		_, err := s.Path(key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestSniff(t *testing.T) {
	s, _ := newStore(t)
	key, _, err := s.Stage("page.bin", strings.NewReader("<html><body>hi</body></html>"))
	require.NoError(t, err)

	mt, err := s.Sniff(key)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(mt, "text/html"), mt)
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "passwd", SanitizeName("../../etc/passwd"))
	assert.Equal(t, "evil.txt", SanitizeName(`C:\Users\me\evil.txt`))
	assert.Equal(t, "file", SanitizeName(""))
	assert.Equal(t, "a_b", SanitizeName("a\x00b"))
	long := strings.Repeat("a", 300) + ".pdf"
	got := SanitizeName(long)
	assert.Len(t, got, maxNameLen)
	assert.True(t, strings.HasSuffix(got, ".pdf"))
}

func TestCheck(t *testing.T) {
	s, fsys := newStore(t)
	require.NoError(t, s.Check())

	require.NoError(t, fsys.RemoveAll(s.Root()))
	assert.Error(t, s.Check())
}
