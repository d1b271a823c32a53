// Package domain contains core concepts of the conversation relay.
// This file defines the local User as read from the identity directory.
package domain

import "strings"

// DefaultAvatarURL is assigned to users without an avatar before they are
// mirrored into the external identity directory.
const DefaultAvatarURL = "https://i.pravatar.cc/300"

type UserID string

func (id UserID) String() string { return string(id) }

// User is owned by the identity service. The relay only reads it and mirrors a
// subset of its fields.
type User struct {
	ID        UserID
	FirstName string
	LastName  string
	ImageURL  string
	Login     string
	Phone     string
}

// DisplayName is "first last".
func (u User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// WithDefaultAvatar returns a copy of u carrying DefaultAvatarURL when no avatar is set.
func (u User) WithDefaultAvatar() User {
	if u.ImageURL == "" {
		u.ImageURL = DefaultAvatarURL
	}
	return u
}

// Profile is the display metadata other participants see for u.
func (u User) Profile() ParticipantProfile {
	return ParticipantProfile{FriendlyName: u.DisplayName(), ImageURL: u.ImageURL}
}

// Identity is the external identity record mirrored from a User.
type Identity struct {
	SID          string
	Identity     UserID
	FriendlyName string
	ImageURL     string
}
