package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGo(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "q.go")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func TestLintFileAcceptsConcatenatedMarkedQuery(t *testing.T) {
	path := writeGo(t, "package q\n\nconst cols = `id, name`\n\nconst QGet = `--sql 0cd0953e-af17-4d57-b648-ac3b926ebd25\nselect ` + cols + `\nfrom t;`\n")
	vs, err := lintFile(path, map[string]string{})
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestLintFileFlagsMissingMarker(t *testing.T) {
	path := writeGo(t, "package q\n\nconst QGet = `select id from t`\n")
	vs, err := lintFile(path, map[string]string{})
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, "QGet", vs[0].name)
}

func TestLintFileFlagsDuplicateMarker(t *testing.T) {
	src := "package q\n\nconst A = `--sql e12fae99-2a1e-4b54-adc0-6b6bb2a67d92\nselect 1;`\n\nconst B = `--sql e12fae99-2a1e-4b54-adc0-6b6bb2a67d92\nselect 2;`\n"
	vs, err := lintFile(writeGo(t, src), map[string]string{})
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, "B", vs[0].name)
	assert.Contains(t, vs[0].message, "already used")
}

func TestLintFileIgnoresProse(t *testing.T) {
	path := writeGo(t, "package q\n\nconst help = \"pick a user to update\"\n")
	vs, err := lintFile(path, map[string]string{})
	require.NoError(t, err)
	assert.Empty(t, vs)
}
