package hostfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootPath(t *testing.T) {
	p, err := Root("/host").Path(EtcShadowRel)
	require.NoError(t, err)
	assert.Equal(t, "/host/etc/shadow", p)

	p, err = Root("").Path("/etc/group")
	require.NoError(t, err)
	assert.Equal(t, "/etc/group", p)

	for _, bad := range []string{"", ".", "..", "../etc/passwd", "etc/../../x"} {
		_, err := Root("/host").Path(bad)
		assert.ErrorIs(t, err, ErrInvalidPath, bad)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "sessions.json")

	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0600))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0600))

	b, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(b))

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), st.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}
