package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	dualKeyFormat  = "DUAL_%s_%s"
	groupKeyFormat = "GROUP_%s"
)

type ConversationKind string

const (
	Dual  ConversationKind = "DUAL"
	Group ConversationKind = "GROUP"
)

type Role string

const (
	Admin  Role = "ADMIN"
	Member Role = "MEMBER"
)

// ConversationKey is the unique name a conversation is looked up and created
// under in the external service.
type ConversationKey string

func (k ConversationKey) String() string { return string(k) }

// DualKey is not order-canonicalized: DualKey(a, b) != DualKey(b, a).
// Resolution looks both orders up before creating.
func DualKey(a, b UserID) ConversationKey {
	return ConversationKey(fmt.Sprintf(dualKeyFormat, a, b))
}

// GroupKey is a fresh token, independent of membership.
func GroupKey() ConversationKey {
	return ConversationKey(fmt.Sprintf(groupKeyFormat, uuid.NewString()))
}

type ParticipantProfile struct {
	FriendlyName string
	ImageURL     string
}

// Attributes replaces the free-form attribute map of the external service.
// Peers maps a participant to the profile of the counterpart it talks to, which
// is how a dual conversation is displayed from either side.
type Attributes struct {
	Kind        ConversationKind
	Description string
	Peers       map[UserID]ParticipantProfile
}

func DualAttributes(a, b User) Attributes {
	return Attributes{
		Kind: Dual,
		Peers: map[UserID]ParticipantProfile{
			a.ID: b.Profile(),
			b.ID: a.Profile(),
		},
	}
}

func GroupAttributes(description string) Attributes {
	return Attributes{Kind: Group, Description: description}
}

type Participant struct {
	SID             string
	ConversationSID string
	UserID          UserID
	Role            Role
}

// ParticipantDraft is what gets sent to the external service to add a member.
type ParticipantDraft struct {
	UserID  UserID
	Role    Role
	Profile ParticipantProfile
}

type Conversation struct {
	SID          string
	Key          ConversationKey
	Kind         ConversationKind
	FriendlyName string
	Attributes   Attributes
	Participants []Participant
	CreatedAt    time.Time
}

// ConversationDraft is what gets sent to the external service on creation.
type ConversationDraft struct {
	Key          ConversationKey
	FriendlyName string
	Attributes   Attributes
}

// MembershipOutcome aggregates the per-participant results of a provisioning
// run. A non-empty Failed list never aborts the run.
type MembershipOutcome struct {
	Succeeded []Participant
	Failed    []MembershipFailure
}

type MembershipFailure struct {
	UserID UserID
	Role   Role
	Err    error
}

func (o MembershipOutcome) Partial() bool { return len(o.Failed) > 0 }

func (o *MembershipOutcome) Add(p Participant) {
	o.Succeeded = append(o.Succeeded, p)
}

func (o *MembershipOutcome) Fail(userID UserID, role Role, err error) {
	o.Failed = append(o.Failed, MembershipFailure{UserID: userID, Role: role, Err: err})
}

// Resolution is returned by every find-or-create operation.
type Resolution struct {
	Conversation Conversation
	Created      bool
	Membership   MembershipOutcome
}

// SyncOutcome aggregates a batch identity synchronisation.
type SyncOutcome struct {
	Synced []Identity
	Failed map[UserID]error
}

// Topic is the broadcast destination of a conversation.
func Topic(conversationSID string) string {
	return "/conversation/" + conversationSID
}
