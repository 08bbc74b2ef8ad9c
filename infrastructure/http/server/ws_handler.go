package server

import (
	"context"
	stderrors "errors"
	"gigchat/auth"
	"gigchat/domain/event"
	"gigchat/errors"
	"gigchat/sink"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxFrameSize   = 4096
	replyQueueSize = 8
)

// Frame types exchanged on /ws.
const (
	frameSubscribe          = "subscribe"
	frameUnsubscribe        = "unsubscribe"
	framePing               = "ping"
	framePong               = "pong"
	frameConnected          = "connected"
	frameSubscribed         = "subscribed"
	frameUnsubscribed       = "unsubscribed"
	frameError              = "error"
	frameMessage            = "message"
	frameParticipantRemoved = "participant_removed"
)

type clientFrame struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversationId"`
	UserID         int64  `json:"userId"`
}

type serverFrame struct {
	Type           string            `json:"type"`
	SessionID      string            `json:"sessionId,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	ConversationID int64             `json:"conversationId,omitempty"`
	UserID         int64             `json:"userId,omitempty"`
	Message        *messageResponse  `json:"message,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// serveWebsocket runs behind the gate: the request context carries the
// verified identity. One goroutine reads client frames, another owns every
// write to the connection. A session may only subscribe as the user its
// identity's email belongs to.
func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("Websocket upgrade failed", "error", err)
		return
	}
	s.gate.AfterConnect(r.Context(), identity)

	sessionID := uuid.NewString()
	log := s.log.With("session_id", sessionID, "subject", identity.Subject)
	userID := s.sessionUser(log, identity)
	session := sink.NewSessionSink(s.connectionBufferSize)
	replies := make(chan serverFrame, replyQueueSize)
	defer s.registry.Disconnect(sessionID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Debug("Websocket session opened", "user_id", userID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Unblocks the reader when the writer gives up first
		defer conn.Close()
		defer cancel()
		s.writeLoop(ctx, conn, session, replies)
	}()

	replies <- serverFrame{Type: frameConnected, SessionID: sessionID, Attributes: auth.SessionAttributes(r.Context())}
	conn.SetReadLimit(maxFrameSize)
	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("Websocket read ended", "error", err)
			}
			break
		}
		reply := s.handleFrame(ctx, sessionID, userID, session, frame)
		select {
		case replies <- reply:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	cancel()
	<-done
	log.Debug("Websocket session closed")
}

// sessionUser resolves the user an identity speaks for, 0 when there is none.
func (s *Server) sessionUser(log *slog.Logger, identity auth.Identity) int64 {
	if identity.Email == "" {
		return 0
	}
	user, err := s.users.GetUserByEmail(auth.NormalizeEmail(identity.Email))
	if err != nil {
		if !stderrors.Is(err, errors.ErrUserNotFound) {
			log.Warn("Websocket user lookup failed", "error", err)
		}
		return 0
	}
	return user.ID
}

func (s *Server) handleFrame(ctx context.Context, sessionID string, userID int64, session *sink.SessionSink, frame clientFrame) serverFrame {
	switch frame.Type {
	case framePing:
		return serverFrame{Type: framePong}
	case frameSubscribe:
		if userID == 0 || frame.UserID != userID {
			return serverFrame{Type: frameError, ConversationID: frame.ConversationID, Error: "forbidden user"}
		}
		ok, err := s.chatService.IsParticipant(ctx, frame.ConversationID, frame.UserID)
		if err != nil || !ok {
			return serverFrame{Type: frameError, ConversationID: frame.ConversationID, Error: "not a participant"}
		}
		s.registry.Subscribe(sessionID, frame.UserID, frame.ConversationID, session)
		return serverFrame{Type: frameSubscribed, ConversationID: frame.ConversationID}
	case frameUnsubscribe:
		s.registry.Unsubscribe(sessionID, frame.ConversationID)
		return serverFrame{Type: frameUnsubscribed, ConversationID: frame.ConversationID}
	default:
		return serverFrame{Type: frameError, Error: "unknown frame type"}
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, session *sink.SessionSink, replies <-chan serverFrame) {
	write := func(frame serverFrame) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(frame); err != nil {
			s.log.Debug("Websocket write failed", "error", err)
			return false
		}
		return true
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case frame := <-replies:
			if !write(frame) {
				return
			}
		case evt := <-session.Events():
			if !write(toEventFrame(evt)) {
				return
			}
		}
	}
}

func toEventFrame(evt event.DomainEvent) serverFrame {
	switch e := evt.(type) {
	case event.MessagePosted:
		message := toMessageResponse(e.Message)
		return serverFrame{Type: frameMessage, ConversationID: e.ConversationID(), Message: &message}
	case event.ParticipantRemoved:
		return serverFrame{Type: frameParticipantRemoved, ConversationID: e.ConversationID(), UserID: e.UserID}
	default:
		return serverFrame{Type: frameError, ConversationID: evt.ConversationID(), Error: "unsupported event"}
	}
}
