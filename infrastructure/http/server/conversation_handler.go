package server

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/samber/lo"
)

// caller is set by the auth middleware on every protected route.
func caller(r *http.Request) domain.UserID {
	id, _ := auth.UserID(r.Context())
	return domain.UserID(id)
}

// createConversation resolves a dual conversation when exactly one other
// participant is given, and creates a group otherwise.
func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	var body CreateConversationRequest
	if err := s.decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	ids := lo.Map(body.ParticipantIDs, func(id string, _ int) domain.UserID { return domain.UserID(id) })
	resolution, err := s.conversations.FindOrCreate(r.Context(), ids, body.FriendlyName, body.Description, caller(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if resolution.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toResolutionResponse(resolution))
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	if !auth.HasRole(r.Context(), auth.AdminRole) {
		s.writeError(w, r, errors.ErrForbidden)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, r, fmt.Errorf("%w: limit %q", errors.ErrInvalidRequest, raw))
			return
		}
		limit = parsed
	}
	conversations, err := s.conversations.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(conversations, func(c domain.Conversation, _ int) ConversationResponse {
		return toConversationResponse(c)
	}))
}

func (s *Server) dualConversation(w http.ResponseWriter, r *http.Request) {
	other := domain.UserID(r.PathValue("userId"))
	resolution, err := s.conversations.ResolveDual(r.Context(), other, caller(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResolutionResponse(resolution))
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.conversations.Delete(r.Context(), r.PathValue("sid")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) accessToken(w http.ResponseWriter, r *http.Request) {
	identity := caller(r).String()
	token, err := s.accessTokens.Issue(identity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{
		Token:      token,
		Identity:   identity,
		TTLSeconds: int(auth.AccessTokenTTL.Seconds()),
	})
}

func (s *Server) presence(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")
	online, err := s.chat.Online(r.Context(), sid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PresenceResponse{ConversationSID: sid, Online: online})
}
