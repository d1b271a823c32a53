package server

import (
	"chat-relay/domain"
	"time"

	"github.com/samber/lo"
)

type CreateConversationRequest struct {
	ParticipantIDs []string `json:"participantIds" validate:"required,min=1,dive,required,max=128"`
	FriendlyName   string   `json:"friendlyName" validate:"max=256"`
	Description    string   `json:"description" validate:"max=1024"`
}

type PostMessageRequest struct {
	Text     string `json:"text" validate:"max=4096"`
	Pending  bool   `json:"pending"`
	Sent     bool   `json:"sent"`
	Received bool   `json:"received"`
}

type PatchMessageRequest struct {
	Pending  *bool `json:"pending"`
	Sent     *bool `json:"sent"`
	Received *bool `json:"received"`
}

type searchQuery struct {
	Q     string `validate:"required,max=256"`
	Limit int    `validate:"gte=1,lte=100"`
}

type ProfileResponse struct {
	FriendlyName string `json:"friendlyName"`
	ImageURL     string `json:"imageUrl"`
}

type ParticipantResponse struct {
	SID    string `json:"sid"`
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

type MembershipFailureResponse struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	Error  string `json:"error"`
}

type ConversationResponse struct {
	SID          string                      `json:"sid"`
	Key          string                      `json:"uniqueName"`
	Kind         string                      `json:"kind"`
	FriendlyName string                      `json:"friendlyName"`
	Description  string                      `json:"description,omitempty"`
	Peers        map[string]ProfileResponse  `json:"peers,omitempty"`
	Participants []ParticipantResponse       `json:"participants"`
	CreatedAt    *time.Time                  `json:"createdAt,omitempty"`
	Created      bool                        `json:"created"`
	Failed       []MembershipFailureResponse `json:"failedParticipants,omitempty"`
}

type MediaResponse struct {
	Key         string `json:"key"`
	Category    string `json:"category"`
	ContentType string `json:"contentType"`
}

type MessageResponse struct {
	ID              string         `json:"id"`
	ConversationSID string         `json:"conversationSid"`
	SenderID        string         `json:"senderId"`
	Text            string         `json:"text,omitempty"`
	Media           *MediaResponse `json:"media,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	Pending         bool           `json:"pending"`
	Sent            bool           `json:"sent"`
	Received        bool           `json:"received"`
	System          bool           `json:"system"`
}

type MessagePageResponse struct {
	Messages []MessageResponse `json:"messages"`
	Cursor   *string           `json:"cursor"`
}

type TokenResponse struct {
	Token      string `json:"token"`
	Identity   string `json:"identity"`
	TTLSeconds int    `json:"ttlSeconds"`
}

type PresenceResponse struct {
	ConversationSID string   `json:"conversationSid"`
	Online          []string `json:"online"`
}

type errorResponse struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}

func toConversationResponse(c domain.Conversation) ConversationResponse {
	response := ConversationResponse{
		SID:          c.SID,
		Key:          c.Key.String(),
		Kind:         string(c.Kind),
		FriendlyName: c.FriendlyName,
		Description:  c.Attributes.Description,
		Participants: lo.Map(c.Participants, func(p domain.Participant, _ int) ParticipantResponse {
			return ParticipantResponse{SID: p.SID, UserID: p.UserID.String(), Role: string(p.Role)}
		}),
	}
	if len(c.Attributes.Peers) > 0 {
		response.Peers = lo.MapEntries(c.Attributes.Peers, func(id domain.UserID, p domain.ParticipantProfile) (string, ProfileResponse) {
			return id.String(), ProfileResponse{FriendlyName: p.FriendlyName, ImageURL: p.ImageURL}
		})
	}
	if !c.CreatedAt.IsZero() {
		response.CreatedAt = lo.ToPtr(c.CreatedAt)
	}
	return response
}

func toResolutionResponse(r domain.Resolution) ConversationResponse {
	response := toConversationResponse(r.Conversation)
	response.Created = r.Created
	response.Failed = lo.Map(r.Membership.Failed, func(f domain.MembershipFailure, _ int) MembershipFailureResponse {
		return MembershipFailureResponse{UserID: f.UserID.String(), Role: string(f.Role), Error: f.Err.Error()}
	})
	return response
}

func toMessageResponse(m domain.Message) MessageResponse {
	response := MessageResponse{
		ID:              m.ID.String(),
		ConversationSID: m.ConversationSID,
		SenderID:        m.SenderID.String(),
		Text:            m.Text,
		CreatedAt:       m.CreatedAt,
		Pending:         m.Flags.Pending,
		Sent:            m.Flags.Sent,
		Received:        m.Flags.Received,
		System:          m.System,
	}
	if m.Media != nil {
		response.Media = &MediaResponse{
			Key:         m.Media.Key,
			Category:    string(m.Media.Category),
			ContentType: m.Media.ContentType,
		}
	}
	return response
}

func toMessageResponses(messages []domain.Message) []MessageResponse {
	return lo.Map(messages, func(m domain.Message, _ int) MessageResponse {
		return toMessageResponse(m)
	})
}
