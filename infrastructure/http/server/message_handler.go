package server

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/services"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(caller(r).String()) {
			s.writeError(w, r, errors.ErrRateLimited)
			return
		}
		next(w, r)
	}
}

// postMessage accepts a JSON body, or a multipart form with a "message" JSON
// part and an optional "file" part.
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	cmd := services.PostMessageCommand{
		ConversationSID: r.PathValue("sid"),
		SenderID:        caller(r),
	}
	var body PostMessageRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
		if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
			s.writeError(w, r, fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err))
			return
		}
		defer r.MultipartForm.RemoveAll()
		if raw := r.FormValue("message"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &body); err != nil {
				s.writeError(w, r, fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err))
				return
			}
		}
		file, header, err := r.FormFile("file")
		switch {
		case err == nil:
			defer file.Close()
			cmd.Attachment = &services.Attachment{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Size:        header.Size,
				Body:        file,
			}
		case !errors.Is(err, http.ErrMissingFile):
			s.writeError(w, r, fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err))
			return
		}
	} else if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err))
		return
	}
	if err := s.check(body); err != nil {
		s.writeError(w, r, err)
		return
	}

	cmd.Text = body.Text
	cmd.Flags = domain.DeliveryFlags{Pending: body.Pending, Sent: body.Sent, Received: body.Received}
	message, err := s.chat.PostMessage(r.Context(), cmd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageResponse(message))
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	var cursor *string
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor = &raw
	}
	messages, next, err := s.chat.GetMessages(r.PathValue("sid"), cursor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessagePageResponse{Messages: toMessageResponses(messages), Cursor: next})
}

func (s *Server) searchMessages(w http.ResponseWriter, r *http.Request) {
	query := searchQuery{Q: r.URL.Query().Get("q"), Limit: s.opts.SearchLimit}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: limit %q", errors.ErrInvalidRequest, raw))
			return
		}
		query.Limit = limit
	}
	if err := s.check(query); err != nil {
		s.writeError(w, r, err)
		return
	}
	messages, err := s.chat.SearchMessages(r.Context(), r.PathValue("sid"), query.Q, query.Limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponses(messages))
}

func (s *Server) getMessage(w http.ResponseWriter, r *http.Request) {
	id, err := messageID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	message, err := s.chat.GetMessage(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponse(message))
}

// patchMessage updates delivery flags only; absent fields are left as stored.
func (s *Server) patchMessage(w http.ResponseWriter, r *http.Request) {
	id, err := messageID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body PatchMessageRequest
	if err := s.decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	message, err := s.chat.PatchDelivery(id, domain.DeliveryPatch{
		Pending:  body.Pending,
		Sent:     body.Sent,
		Received: body.Received,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponse(message))
}

func (s *Server) getMedia(w http.ResponseWriter, r *http.Request) {
	obj, err := s.media.GetMedia(r.Context(), r.PathValue("key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer obj.Body.Close()
	w.Header().Set("Content-Type", obj.ContentType)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		s.log.Warn("Media stream interrupted", "key", r.PathValue("key"), "error", err)
	}
}

func messageID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: message id %q", errors.ErrInvalidRequest, r.PathValue("id"))
	}
	return id, nil
}
