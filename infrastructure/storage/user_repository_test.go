package storage

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Save_And_Get_User(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openInMemory(t))
	alice := domain.User{ID: "U1", FirstName: "Alice", LastName: "Martin", Login: "alice"}
	req.NoError(repository.SaveUser(alice))

	fetched, err := repository.GetUser(context.Background(), "U1")
	req.NoError(err)
	req.Equal(alice, fetched)
}

func Test_Unknown_User_Is_Not_Found(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openInMemory(t))

	_, err := repository.GetUser(context.Background(), "ghost")
	req.ErrorIs(err, errors.ErrUserNotFound)
	req.True(errors.IsNotFound(err))
}

func Test_List_Users(t *testing.T) {
	req := require.New(t)
	repository := NewUserRepository(openInMemory(t))
	req.NoError(repository.SaveUser(domain.User{ID: "U1", FirstName: "Alice"}))
	req.NoError(repository.SaveUser(domain.User{ID: "U2", FirstName: "Bob"}))

	users, err := repository.ListUsers(context.Background())
	req.NoError(err)
	req.Len(users, 2)
	req.ElementsMatch([]domain.UserID{"U1", "U2"}, []domain.UserID{users[0].ID, users[1].ID})
}
