package blob

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func TestBadgerStore_Put_Then_Get(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLogger(nil))
	req.NoError(err)
	defer db.Close()
	store := NewBadgerStore(db)
	ctx := context.Background()

	req.NoError(store.Put(ctx, contract.PutObject{
		Key:         "CH1/file/abc-notes.txt",
		Body:        strings.NewReader("hello"),
		Size:        5,
		ContentType: "text/plain",
		Policy:      contract.AuthenticatedRead,
	}))

	obj, err := store.Get(ctx, "CH1/file/abc-notes.txt")
	req.NoError(err)
	defer obj.Body.Close()
	data, err := io.ReadAll(obj.Body)
	req.NoError(err)
	req.Equal("hello", string(data))
	req.Equal("text/plain", obj.ContentType)
	req.EqualValues(5, obj.Size)
}

func TestBadgerStore_Missing_Key(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	req.NoError(err)
	defer db.Close()

	_, err = NewBadgerStore(db).Get(context.Background(), "nope")
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestBadgerStore_Short_Body(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	req.NoError(err)
	defer db.Close()

	err = NewBadgerStore(db).Put(context.Background(), contract.PutObject{Key: "k", Body: strings.NewReader("abc"), Size: 10})
	req.Error(err)
}

func TestBadgerStore_Delete(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	req.NoError(err)
	defer db.Close()
	store := NewBadgerStore(db)
	ctx := context.Background()

	req.NoError(store.Put(ctx, contract.PutObject{Key: "CH1/audio/x-voice.webm", Body: strings.NewReader("abc"), Size: 3}))
	req.NoError(store.Delete(ctx, "CH1/audio/x-voice.webm"))

	_, err = store.Get(ctx, "CH1/audio/x-voice.webm")
	req.ErrorIs(err, errors.ErrNotFound)
	req.NoError(store.Delete(ctx, "never-stored"))
}
