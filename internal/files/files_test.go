package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExists(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, Exists(dir))
	p := filepath.Join(dir, "a.txt")
	assert.False(t, Exists(p))
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	assert.True(t, Exists(p))
}

func TestExpandHome(t *testing.T) {
	assert.Equal(t, "", ExpandHome(""))
	assert.Equal(t, "/tmp/x", ExpandHome("/tmp/x"))
	assert.Equal(t, "~user/x", ExpandHome("~user/x"))

	expanded := ExpandHome("~/cache")
	assert.NotEqual(t, "~/cache", expanded)
	assert.Equal(t, "cache", filepath.Base(expanded))
}
