package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promypy/internal/core"
)

func memTree(t *testing.T, root string, files ...string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for _, f := range files {
		path := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, afero.WriteFile(fsys, path, []byte("x = 1\n"), 0o644))
	}
	return fsys
}

func TestDiscover(t *testing.T) {
	root := filepath.FromSlash("/repo")
	fsys := memTree(t, root,
		"main.py",
		"pkg/__init__.py",
		"pkg/mod.py",
		"pkg/stub.pyi",
		"pkg/data.json",
		"tests/test_mod.py",
		"tests_helpers.py",
		".venv/lib/site.py",
		"pkg/.hidden.py",
		"docs/conf.py",
	)

	tests := []struct {
		name string
		opts Options
		want []core.FileID
	}{
		{
			"defaults",
			Options{},
			[]core.FileID{"docs/conf.py", "main.py", "pkg/__init__.py", "pkg/mod.py", "tests/test_mod.py", "tests_helpers.py"},
		},
		{
			"prefix exclusions",
			Options{Exclude: []string{"tests", "./docs/"}},
			[]core.FileID{"main.py", "pkg/__init__.py", "pkg/mod.py"},
		},
		{
			"stubs included",
			Options{Extensions: []string{".py", ".pyi"}, Exclude: []string{"pkg/__init__"}},
			[]core.FileID{"docs/conf.py", "main.py", "pkg/mod.py", "pkg/stub.pyi", "tests/test_mod.py", "tests_helpers.py"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.opts.Fs = fsys
			got, err := Discover(root, tc.opts)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDiscover_OsFilesystem(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "b", "c.py"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "top.py"), nil, 0o644))

	got, err := Discover(root, Options{})
	require.NoError(t, err)
	assert.Equal(t, []core.FileID{"a/b/c.py", "top.py"}, got)
}

func TestDiscover_MissingRoot(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "nope"), Options{})
	assert.Error(t, err)
}
