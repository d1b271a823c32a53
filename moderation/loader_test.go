package moderation

import (
	"chat-relay/errors"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestCensoredLoader_LoadAll(t *testing.T) {
	req := require.New(t)
	fsys := fstest.MapFS{
		"censored/en.txt":    {Data: []byte("badger\r\nsnake\n\n# comment\n")},
		"censored/fr.txt":    {Data: []byte("blaireau\nbadger\n")},
		"censored/README.md": {Data: []byte("ignored")},
	}

	data, err := NewCensoredLoader(fsys).LoadAll("censored")
	req.NoError(err)
	req.Equal([]string{"en", "fr"}, data.Languages)
	req.Equal([]string{"badger", "blaireau", "snake"}, data.Words)
}

func TestCensoredLoader_Rejects_Subdirectories(t *testing.T) {
	req := require.New(t)
	fsys := fstest.MapFS{
		"censored/en.txt":       {Data: []byte("badger")},
		"censored/nested/x.txt": {Data: []byte("snake")},
	}

	_, err := NewCensoredLoader(fsys).LoadAll("censored")
	req.ErrorIs(err, errors.ErrOnlyCensoredFiles)
}

func TestCensoredLoader_Empty(t *testing.T) {
	req := require.New(t)
	fsys := fstest.MapFS{"censored/en.txt": {Data: []byte("\n\n")}}

	_, err := NewCensoredLoader(fsys).LoadAll("censored")
	req.ErrorIs(err, errors.ErrEmptyWords)
}
