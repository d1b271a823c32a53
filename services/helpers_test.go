package services

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"log/slog"

	"github.com/mama165/sdk-go/logs"
)

// directory is a fixed UserDirectory.
type directory map[domain.UserID]domain.User

func (d directory) GetUser(_ context.Context, id domain.UserID) (domain.User, error) {
	u, ok := d[id]
	if !ok {
		return domain.User{}, errors.ErrUserNotFound
	}
	return u, nil
}

func (d directory) ListUsers(context.Context) ([]domain.User, error) {
	users := make([]domain.User, 0, len(d))
	for _, u := range d {
		users = append(users, u)
	}
	return users, nil
}

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelError)
}

func people() directory {
	return directory{
		"U1": {ID: "U1", FirstName: "Alice", LastName: "Martin", Login: "alice"},
		"U2": {ID: "U2", FirstName: "Bob", LastName: "Stone", Login: "bob", ImageURL: "https://img/bob"},
		"A":  {ID: "A", FirstName: "Ada", Login: "ada"},
		"B":  {ID: "B", FirstName: "Brian", Login: "brian"},
		"C":  {ID: "C", FirstName: "Carla", Login: "carla"},
	}
}
