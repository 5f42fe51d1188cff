// ABOUTME: Tests for the sandboxed cat and tree builtin tools
// ABOUTME: Builds small directory fixtures under t.TempDir

package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestSandbox(t *testing.T) (*Sandbox, *Registry) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "README.md"), "# hello\n")
	writeFile(t, filepath.Join(root, "src", "main.go"), "package main\n")
	writeFile(t, filepath.Join(root, "src", "util", "util.go"), "package util\n")
	writeFile(t, filepath.Join(root, "node_modules", "x.js"), "")

	sb, err := NewSandbox(root, []string{"node_modules"})
	require.NoError(t, err)
	reg, err := NewRegistry(sb.Builtins()...)
	require.NoError(t, err)
	return sb, reg
}

func TestCat(t *testing.T) {
	_, reg := newTestSandbox(t)

	out, err := reg.Invoke(context.Background(), "cat", `{"filePath":"README.md"}`, nil)
	require.NoError(t, err)
	assert.Equal(t, `"# hello\n"`, out)
}

func TestCat_MissingFile(t *testing.T) {
	_, reg := newTestSandbox(t)

	_, err := reg.Invoke(context.Background(), "cat", `{"filePath":"nope.txt"}`, nil)
	assert.ErrorIs(t, err, ErrToolExecution)
}

func TestCat_RejectsEscape(t *testing.T) {
	_, reg := newTestSandbox(t)

	_, err := reg.Invoke(context.Background(), "cat", `{"filePath":"../../etc/passwd"}`, nil)
	assert.ErrorIs(t, err, ErrOutsideRoot)

	_, err = reg.Invoke(context.Background(), "cat", `{"filePath":"/etc/passwd"}`, nil)
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestTree(t *testing.T) {
	sb, _ := newTestSandbox(t)

	out, err := sb.tree(context.Background(), map[string]any{"directory": "."})
	require.NoError(t, err)

	want := "├── README.md\n" +
		"└── src/\n" +
		"    ├── main.go\n" +
		"    └── util/\n" +
		"        └── util.go"
	assert.Equal(t, want, out)
}

func TestTree_CallExcludes(t *testing.T) {
	sb, _ := newTestSandbox(t)

	out, err := sb.tree(context.Background(), map[string]any{
		"directory": ".",
		"excludes":  []any{"util"},
	})
	require.NoError(t, err)

	want := "├── README.md\n" +
		"└── src/\n" +
		"    └── main.go"
	assert.Equal(t, want, out)
}

func TestTree_NonLastDirectoryUsesPipeIndent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "inner.txt"), "")
	writeFile(t, filepath.Join(root, "b.txt"), "")
	sb, err := NewSandbox(root, nil)
	require.NoError(t, err)

	out, err := sb.tree(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "├── a/\n|   └── inner.txt\n└── b.txt", out)
}
