package storage

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

var _ contract.UserDirectory = UserRepository{}

const userPrefix = "user:"

// UserRepository is the local copy of the identity directory.
// The relay only reads it; SaveUser exists for seeding and tests.
type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) UserRepository {
	return UserRepository{db: db}
}

type DiskUser struct {
	ID        string `cbor:"id"`
	FirstName string `cbor:"first_name"`
	LastName  string `cbor:"last_name"`
	ImageURL  string `cbor:"image_url,omitempty"`
	Login     string `cbor:"login"`
	Phone     string `cbor:"phone,omitempty"`
}

func (u UserRepository) SaveUser(user domain.User) error {
	data, err := cbor.Marshal(DiskUser{
		ID:        string(user.ID),
		FirstName: user.FirstName,
		LastName:  user.LastName,
		ImageURL:  user.ImageURL,
		Login:     user.Login,
		Phone:     user.Phone,
	})
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return u.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(userPrefix+string(user.ID)), data)
	})
}

func (u UserRepository) GetUser(_ context.Context, id domain.UserID) (domain.User, error) {
	var disk DiskUser
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userPrefix + string(id)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &disk)
		})
	})
	if err != nil {
		return domain.User{}, err
	}
	return toUser(disk), nil
}

func (u UserRepository) ListUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = []byte(userPrefix)
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var disk DiskUser
			if err := it.Item().Value(func(val []byte) error {
				return cbor.Unmarshal(val, &disk)
			}); err != nil {
				return err
			}
			users = append(users, toUser(disk))
		}
		return nil
	})
	return users, err
}

func toUser(d DiskUser) domain.User {
	return domain.User{
		ID:        domain.UserID(d.ID),
		FirstName: d.FirstName,
		LastName:  d.LastName,
		ImageURL:  d.ImageURL,
		Login:     d.Login,
		Phone:     d.Phone,
	}
}
