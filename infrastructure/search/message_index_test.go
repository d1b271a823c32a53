package search

import (
	"chat-relay/domain"
	"chat-relay/domain/search"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newIndex(t *testing.T) *MessageIndex {
	t.Helper()
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	return NewMessageIndex(writer, logs.GetLoggerFromLevel(slog.LevelDebug))
}

func message(sid, text string) domain.Message {
	return domain.Message{ID: uuid.New(), ConversationSID: sid, SenderID: "U1", Text: text, CreatedAt: time.Now().UTC()}
}

func messageFrom(sender domain.UserID, text string) domain.Message {
	m := message("CH1", text)
	m.SenderID = sender
	return m
}

func TestMessageIndex_Search_Within_Conversation(t *testing.T) {
	req := require.New(t)
	index := newIndex(t)
	invoice := message("CH1", "please send the invoice tomorrow")
	lunch := message("CH1", "lunch at noon")
	other := message("CH2", "the invoice is paid")
	for _, m := range []domain.Message{invoice, lunch, other} {
		req.NoError(index.Index(m))
	}

	ids, err := index.Search(context.Background(), search.NewSearchQuery("CH1", "invoice", 10))
	req.NoError(err)
	req.Equal([]uuid.UUID{invoice.ID}, ids)
}

func TestMessageIndex_Skips_System_Messages(t *testing.T) {
	req := require.New(t)
	index := newIndex(t)
	req.NoError(index.Index(domain.JoinAnnouncement("CH1", "alice", time.Now())))

	ids, err := index.Search(context.Background(), search.NewSearchQuery("CH1", "joined", 10))
	req.NoError(err)
	req.Empty(ids)
}

func TestMessageIndex_Delete(t *testing.T) {
	req := require.New(t)
	index := newIndex(t)
	m := message("CH1", "secret plans")
	req.NoError(index.Index(m))
	req.NoError(index.Delete(m.ID))

	ids, err := index.Search(context.Background(), search.NewSearchQuery("CH1", "plans", 10))
	req.NoError(err)
	req.Empty(ids)
}

func TestMessageIndex_Search_By_Sender(t *testing.T) {
	req := require.New(t)
	index := newIndex(t)
	fromAlice := messageFrom("U1", "invoice sent")
	fromBob := messageFrom("U2", "invoice received")
	req.NoError(index.Index(fromAlice))
	req.NoError(index.Index(fromBob))

	ids, err := index.Search(context.Background(), search.NewSearchQuery("CH1", "invoice --from U2", 10))
	req.NoError(err)
	req.Equal([]uuid.UUID{fromBob.ID}, ids)

	ids, err = index.Search(context.Background(), search.NewSearchQuery("CH1", "--from U1", 10))
	req.NoError(err)
	req.Equal([]uuid.UUID{fromAlice.ID}, ids)
}
