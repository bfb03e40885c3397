package repopath

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"Root", "", "", false},
		{"Single", "dir", "dir", false},
		{"Nested", "dir/sub/file.txt", "dir/sub/file.txt", false},
		{"Absolute", "/dir", "", true},
		{"TrailingSlash", "dir/", "", true},
		{"EmptyComponent", "dir//file", "", true},
		{"Dot", "dir/./file", "", true},
		{"DotDot", "dir/../file", "", true},
		{"NulByte", "dir/a\x00b", "", true},
		{"InvalidUTF8", "dir/\xff", "", true},
		// "e" followed by a combining acute accent is stored composed.
		{"Decomposed", "cafe\u0301", "caf\u00e9", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				require.True(t, errors.Is(err, ErrInvalidPath))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, p.String())
		})
	}
}

func TestPathSplit(t *testing.T) {
	t.Run("Root", func(t *testing.T) {
		_, _, ok := Root.Split()
		require.False(t, ok)
		require.True(t, Root.IsRoot())
		require.Equal(t, 0, Root.Depth())
		require.Nil(t, Root.Components())
	})

	t.Run("TopLevel", func(t *testing.T) {
		parent, base, ok := MustParse("a").Split()
		require.True(t, ok)
		require.True(t, parent.IsRoot())
		require.Equal(t, "a", base)
	})

	t.Run("Nested", func(t *testing.T) {
		p := MustParse("a/b/c")
		require.Equal(t, "a/b", p.Parent().String())
		require.Equal(t, "c", p.Base())
		require.Equal(t, 3, p.Depth())
		require.Equal(t, []string{"a", "b", "c"}, p.Components())
		require.Equal(t, p, FromComponents(p.Components()))
	})
}

func TestPathJoin(t *testing.T) {
	p, err := Root.Join("a")
	require.NoError(t, err)
	p, err = p.Join("b")
	require.NoError(t, err)
	require.Equal(t, "a/b", p.String())

	_, err = p.Join("c/d")
	require.ErrorIs(t, err, ErrInvalidPath)
	_, err = p.Join("..")
	require.ErrorIs(t, err, ErrInvalidPath)
}

func TestFromOS(t *testing.T) {
	root := filepath.Join("tmp", "root")

	p, err := FromOS(root, root)
	require.NoError(t, err)
	require.True(t, p.IsRoot())

	p, err = FromOS(root, filepath.Join(root, "dir", "file"))
	require.NoError(t, err)
	require.Equal(t, "dir/file", p.String())

	_, err = FromOS(root, filepath.Join("tmp", "other"))
	require.ErrorIs(t, err, ErrInvalidPath)
}
