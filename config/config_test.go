package config

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "winmount.json")
	doc := Document{
		Filesystems: []FilesystemDecl{
			{ID: uuid.New(), Name: "scratch", KindID: uuid.New(), Config: []byte(`{"root":"/tmp"}`)},
		},
	}
	require.NoError(t, Save(path, doc))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, doc.Filesystems[0].Name, got.Filesystems[0].Name)
	assert.Equal(t, doc.Filesystems[0].ID, got.Filesystems[0].ID)
}

func TestLoadMissingFileIsEmptyDocument(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Empty(t, got.Filesystems)
	assert.Empty(t, got.Servers)
}
