package services

import (
	"bytes"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/mimetypes"
	"chat-relay/errors"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// sniffLen is the number of leading bytes inspected to detect a content type.
const sniffLen = 512

type IMediaGateway interface {
	PutMedia(ctx context.Context, conversationSID, filename, declaredType string, body io.Reader, size int64) (domain.MediaDescriptor, error)
	GetMedia(ctx context.Context, key string) (contract.Object, error)
	DeleteMedia(ctx context.Context, key string) error
}

type MediaGateway struct {
	store   contract.BlobStore
	log     *slog.Logger
	timeout time.Duration
}

func NewMediaGateway(store contract.BlobStore, log *slog.Logger, timeout time.Duration) *MediaGateway {
	return &MediaGateway{store: store, log: log, timeout: timeout}
}

// MediaKey is "{conversation}/{category}/{random}-{filename}", spaces in the
// file name replaced with underscores.
func MediaKey(conversationSID string, category domain.Category, id uuid.UUID, filename string) string {
	return fmt.Sprintf("%s/%s/%s-%s", conversationSID, category, id, sanitize(filename))
}

func sanitize(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	return strings.ReplaceAll(name, " ", "_")
}

// PutMedia stores an attachment with an authenticated-read policy. The category
// comes from the declared type, which must agree with the sniffed bytes.
func (g *MediaGateway) PutMedia(ctx context.Context, conversationSID, filename, declaredType string, body io.Reader, size int64) (domain.MediaDescriptor, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return domain.MediaDescriptor{}, errors.NewMediaError("read", filename, err)
	}
	head = head[:n]

	contentType, category, ok := mimetypes.Resolve(declaredType, head)
	if !ok {
		cause := errors.ErrMediaTypeMismatch
		if contentType == mimetypes.Unknown {
			cause = errors.ErrMediaTypeUnreadable
		}
		g.log.Warn("Media rejected", "conversation_sid", conversationSID, "declared", declaredType,
			"sniffed", mimetypes.Sniff(head), "error", cause)
		return domain.MediaDescriptor{}, errors.NewMediaError("put", filename, cause)
	}

	key := MediaKey(conversationSID, category, uuid.New(), filename)
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()
	err = g.store.Put(ctx, contract.PutObject{
		Key:         key,
		Body:        io.MultiReader(bytes.NewReader(head), body),
		Size:        size,
		ContentType: string(contentType),
		Policy:      contract.AuthenticatedRead,
	})
	if err != nil {
		g.log.Error("Media upload failed", "key", key, "error", err)
		return domain.MediaDescriptor{}, errors.NewMediaError("put", key, err)
	}
	g.log.Debug("Media stored", "key", key, "category", category)
	return domain.MediaDescriptor{Key: key, Category: category, ContentType: string(contentType)}, nil
}

// GetMedia opens a stored attachment. The caller closes the body, which stays
// bound to ctx while it is read.
func (g *MediaGateway) GetMedia(ctx context.Context, key string) (contract.Object, error) {
	obj, err := g.store.Get(ctx, key)
	switch {
	case err == nil:
		return obj, nil
	case errors.IsNotFound(err):
		return contract.Object{}, errors.NewMediaError("get", key, errors.ErrMediaNotFound)
	default:
		g.log.Error("Media download failed", "key", key, "error", err)
		return contract.Object{}, errors.NewMediaError("get", key, err)
	}
}

// DeleteMedia removes a stored attachment, bounded by the gateway timeout.
func (g *MediaGateway) DeleteMedia(ctx context.Context, key string) error {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()
	if err := g.store.Delete(ctx, key); err != nil {
		return errors.NewMediaError("delete", key, err)
	}
	return nil
}
