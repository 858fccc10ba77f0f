package configfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Items []string `json:"items" yaml:"items"`
}

func TestDecodeByExtension(t *testing.T) {
	got, err := Decode[doc]([]byte("items: [a, b]"), ".YML", "test")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Items)

	got, err = Decode[doc]([]byte(`{"items":["c"]}`), ".json", "test")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, got.Items)
}

func TestDecodeWithoutExtensionTriesEach(t *testing.T) {
	got, err := Decode[doc]([]byte(`{"items":["x"]}`), "", "test")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got.Items)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode[doc]([]byte("items: ["), ".toml", "sources")
	assert.ErrorIs(t, err, ErrUnknownFormat)
	assert.Contains(t, err.Error(), "sources file")

	_, err = Decode[doc]([]byte("items: ["), ".yaml", "sources")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnknownFormat)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("items: [one]"), 0o600))

	got, err := Load[doc](path, "test")
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, got.Items)

	_, err = Load[doc](" ", "test")
	assert.EqualError(t, err, "test file path is empty")
}
