package blob

import (
	"bytes"
	"chat-relay/contract"
	"chat-relay/errors"
	"context"
	"fmt"
	"io"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

var _ contract.BlobStore = BadgerStore{}

const blobPrefix = "blob:"

// BadgerStore keeps attachments next to the message rows. Objects are read fully
// in memory, so it only suits small deployments.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(db *badger.DB) BadgerStore {
	return BadgerStore{db: db}
}

type diskBlob struct {
	ContentType string `cbor:"content_type"`
	Policy      string `cbor:"policy,omitempty"`
	Data        []byte `cbor:"data"`
}

func (s BadgerStore) Put(ctx context.Context, obj contract.PutObject) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return err
	}
	if obj.Size >= 0 && int64(len(data)) != obj.Size {
		return fmt.Errorf("read %d bytes, expected %d", len(data), obj.Size)
	}
	encoded, err := cbor.Marshal(diskBlob{ContentType: obj.ContentType, Policy: string(obj.Policy), Data: data})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(blobPrefix+obj.Key), encoded)
	})
}

func (s BadgerStore) Get(ctx context.Context, key string) (contract.Object, error) {
	if err := ctx.Err(); err != nil {
		return contract.Object{}, err
	}
	var blob diskBlob
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(blobPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &blob)
		})
	})
	if err != nil {
		return contract.Object{}, err
	}
	return contract.Object{
		Body:        io.NopCloser(bytes.NewReader(blob.Data)),
		ContentType: blob.ContentType,
		Size:        int64(len(blob.Data)),
	}, nil
}

func (s BadgerStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(blobPrefix + key))
	})
}
