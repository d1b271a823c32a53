package twilio

import (
	"chat-relay/domain"
	"encoding/json"
	"fmt"
)

const (
	typeField        = "type"
	descriptionField = "description"
)

type profileJSON struct {
	FriendlyName string `json:"friendlyName"`
	ImageURL     string `json:"imageUrl,omitempty"`
}

type participantJSON struct {
	Participant struct {
		ID           string `json:"id"`
		FriendlyName string `json:"friendlyName"`
		ImageURL     string `json:"imageUrl,omitempty"`
	} `json:"participant"`
	Role string `json:"role"`
}

// encodeAttributes flattens the tagged attributes into the free-form object the
// conversation service stores: one entry per peer keyed by user id, next to the
// "type" and "description" fields.
func encodeAttributes(a domain.Attributes) (string, error) {
	out := make(map[string]any, len(a.Peers)+2)
	for id, profile := range a.Peers {
		out[string(id)] = profileJSON{FriendlyName: profile.FriendlyName, ImageURL: profile.ImageURL}
	}
	out[typeField] = string(a.Kind)
	if a.Description != "" {
		out[descriptionField] = a.Description
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode attributes: %w", err)
	}
	return string(b), nil
}

func decodeAttributes(raw string) (domain.Attributes, error) {
	var attributes domain.Attributes
	if raw == "" {
		return attributes, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return attributes, fmt.Errorf("decode attributes: %w", err)
	}
	for key, value := range fields {
		switch key {
		case typeField:
			var kind string
			if err := json.Unmarshal(value, &kind); err != nil {
				return attributes, fmt.Errorf("decode attributes type: %w", err)
			}
			attributes.Kind = domain.ConversationKind(kind)
		case descriptionField:
			if err := json.Unmarshal(value, &attributes.Description); err != nil {
				return attributes, fmt.Errorf("decode attributes description: %w", err)
			}
		default:
			var profile profileJSON
			// Foreign keys set by other clients are not peers.
			if err := json.Unmarshal(value, &profile); err != nil {
				continue
			}
			if attributes.Peers == nil {
				attributes.Peers = make(map[domain.UserID]domain.ParticipantProfile)
			}
			attributes.Peers[domain.UserID(key)] = domain.ParticipantProfile{
				FriendlyName: profile.FriendlyName,
				ImageURL:     profile.ImageURL,
			}
		}
	}
	return attributes, nil
}

func encodeParticipantAttributes(draft domain.ParticipantDraft) (string, error) {
	var p participantJSON
	p.Participant.ID = string(draft.UserID)
	p.Participant.FriendlyName = draft.Profile.FriendlyName
	p.Participant.ImageURL = draft.Profile.ImageURL
	p.Role = string(draft.Role)
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode participant attributes: %w", err)
	}
	return string(b), nil
}
