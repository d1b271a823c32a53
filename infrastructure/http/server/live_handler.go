package server

import (
	"chat-relay/sink"
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// live subscribes the caller to a conversation and streams every broadcast
// message as a JSON text frame until either side closes. Subscribing triggers
// the join announcement, so it happens only once the upgrade succeeded.
func (s *Server) live(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")
	userID := caller(r)
	ctx, cancel := context.WithCancel(s.base)
	defer cancel()

	if err := s.conversations.EnsureExists(r.Context(), sid); err != nil {
		s.writeError(w, r, err)
		return
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("WebSocket upgrade failed", "conversation_sid", sid, "error", err)
		return
	}

	subscriber := sink.NewSubscriberSink(s.opts.SubscriberBufferSize)
	unsubscribe, err := s.chat.Join(ctx, sid, userID, subscriber)
	if err != nil {
		s.log.Warn("Join failed after upgrade", "conversation_sid", sid, "user_id", userID, "error", err)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "join failed"),
			time.Now().Add(s.opts.WriteTimeout))
		_ = ws.Close()
		return
	}
	defer unsubscribe()
	s.log.Info("Subscriber connected", "conversation_sid", sid, "user_id", userID)

	go s.readLoop(ws, cancel)
	s.writeLoop(ctx, ws, subscriber)
	s.log.Info("Subscriber disconnected", "conversation_sid", sid, "user_id", userID)
}

// readLoop drains client frames so control messages are handled, and cancels
// the subscription once the connection is gone.
func (s *Server) readLoop(ws *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(2 * s.opts.PingInterval))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(2 * s.opts.PingInterval))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, ws *websocket.Conn, subscriber *sink.SubscriberSink) {
	ping := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ping.Stop()
		_ = ws.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.opts.WriteTimeout))
			return
		case message := <-subscriber.Messages:
			_ = ws.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := ws.WriteJSON(toMessageResponse(message)); err != nil {
				return
			}
		case <-ping.C:
			_ = ws.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
