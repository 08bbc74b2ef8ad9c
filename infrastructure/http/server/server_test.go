package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"gigchat/auth"
	"gigchat/domain/event"
	"gigchat/errors"
	"gigchat/mocks"
	"gigchat/ratelimit"
	"gigchat/repositories"
	"gigchat/runtime"
	"gigchat/runtime/workers"
	"gigchat/services"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type testEnv struct {
	router   *gin.Engine
	users    *repositories.UserRepository
	verifier *mocks.MockITokenVerifier
	mailer   *mocks.MockMailer
}

func newTestEnv(t *testing.T) testEnv {
	gin.SetMode(gin.TestMode)
	log := logs.GetLoggerFromLevel(slog.LevelError)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	users, err := repositories.NewUserRepository(db)
	require.NoError(t, err)
	conversations, err := repositories.NewConversationRepository(db, log)
	require.NoError(t, err)
	tokens := repositories.NewResetTokenRepository(db)
	t.Cleanup(func() {
		_ = conversations.Close()
		_ = users.Close()
		_ = db.Close()
	})

	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockITokenVerifier(ctrl)
	mailer := mocks.NewMockMailer(ctrl)

	events := make(chan event.DomainEvent, 16)
	registry := runtime.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = workers.NewEventFanout(log, events, registry, time.Second).Run(ctx) }()

	limiter := ratelimit.NewLimiter(log, ratelimit.NewMemoryStore(), 5, 15*time.Minute)
	chatService := services.NewChatService(log, conversations, events)
	resetService := services.NewPasswordResetService(log, users, tokens, limiter, mailer, services.DefaultResetTokenTTL)
	gate := auth.NewGate(log, verifier)

	server := NewServer(log, chatService, resetService, users, gate, registry, 8)
	return testEnv{router: server.Router(), users: users, verifier: verifier, mailer: mailer}
}

func (e testEnv) user(t *testing.T, email string) int64 {
	user, err := e.users.CreateUser(email, "hash")
	require.NoError(t, err)
	return user.ID
}

func (e testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

// Scenario: alice and bob chat, mallory is not part of the conversation.
func TestServer_ChatFlow(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	alice, bob, mallory := env.user(t, "alice@example.com"), env.user(t, "bob@example.com"), env.user(t, "mallory@example.com")

	rec := env.do(t, http.MethodPost, "/api/chat/conversations", map[string]any{
		"isGroup":            false,
		"participantUserIds": []int64{alice, bob},
	})
	req.Equal(http.StatusOK, rec.Code)
	conversationID := decode[idResponse](t, rec).ID
	base := fmt.Sprintf("/api/chat/conversations/%d", conversationID)

	for i, sender := range []int64{alice, bob, alice} {
		rec = env.do(t, http.MethodPost, base+"/messages", map[string]any{
			"senderUserId": sender,
			"body":         fmt.Sprintf("m%d", i+1),
		})
		req.Equal(http.StatusOK, rec.Code)
		req.Positive(decode[idResponse](t, rec).ID)
	}

	// Newest first, default limit
	rec = env.do(t, http.MethodGet, base+"/messages", nil)
	req.Equal(http.StatusOK, rec.Code)
	messages := decode[[]messageResponse](t, rec)
	req.Len(messages, 3)
	req.Equal("m3", *messages[0].Body)
	req.Equal("text", messages[0].Kind)
	req.Equal(alice, messages[0].SenderUserID)

	rec = env.do(t, http.MethodGet, base+"/messages?limit=1", nil)
	req.Equal(http.StatusOK, rec.Code)
	req.Len(decode[[]messageResponse](t, rec), 1)

	// Paging with a cursor
	rec = env.do(t, http.MethodGet, base+"/messages?cursor=&limit=2", nil)
	req.Equal(http.StatusOK, rec.Code)
	page := decode[pageResponse](t, rec)
	req.Len(page.Messages, 2)
	req.NotNil(page.NextCursor)
	rec = env.do(t, http.MethodGet, base+"/messages?limit=2&cursor="+*page.NextCursor, nil)
	page = decode[pageResponse](t, rec)
	req.Len(page.Messages, 1)
	req.Equal("m1", *page.Messages[0].Body)
	req.Nil(page.NextCursor)

	// Membership is enforced
	rec = env.do(t, http.MethodPost, base+"/messages", map[string]any{"senderUserId": mallory, "body": "let me in"})
	req.Equal(http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, base+"/participants", map[string]any{"userId": mallory})
	req.Equal(http.StatusOK, rec.Code)
	req.Equal("member", decode[participantResponse](t, rec).Role)

	rec = env.do(t, http.MethodPost, base+"/read", map[string]any{"userId": bob, "messageId": messages[0].ID})
	req.Equal(http.StatusOK, rec.Code)
	req.Equal(messages[0].ID, *decode[participantResponse](t, rec).LastReadMessageID)

	rec = env.do(t, http.MethodGet, base+"/participants", nil)
	req.Len(decode[[]participantResponse](t, rec), 3)
}

func TestServer_ChatErrors(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice@example.com")
	rec := env.do(t, http.MethodPost, "/api/chat/conversations", map[string]any{"participantUserIds": []int64{alice}})
	require.Equal(t, http.StatusOK, rec.Code)
	base := fmt.Sprintf("/api/chat/conversations/%d", decode[idResponse](t, rec).ID)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown conversation", http.MethodGet, "/api/chat/conversations/999/messages", nil, http.StatusNotFound},
		{"bad conversation id", http.MethodGet, "/api/chat/conversations/abc/messages", nil, http.StatusBadRequest},
		{"bad limit", http.MethodGet, base + "/messages?limit=x", nil, http.StatusBadRequest},
		{"bad cursor", http.MethodGet, base + "/messages?cursor=x", nil, http.StatusBadRequest},
		{"empty message", http.MethodPost, base + "/messages", map[string]any{"senderUserId": alice}, http.StatusBadRequest},
		{"unknown participant user", http.MethodPost, base + "/participants", map[string]any{"userId": 404}, http.StatusNotFound},
		{"missing sender", http.MethodPost, base + "/messages", map[string]any{"body": "hi"}, http.StatusBadRequest},
		{"unknown user in creation", http.MethodPost, "/api/chat/conversations", map[string]any{"participantUserIds": []int64{404}}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.want, rec.Code)
			require.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}
}

func TestServer_PasswordReset(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	alice := env.user(t, "alice@example.com")

	var token string
	env.mailer.EXPECT().
		SendPasswordReset(gomock.Any(), "alice@example.com", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _, issued string, _ time.Time) error {
			token = issued
			return nil
		})

	// Unknown and known emails get the same answer
	for _, email := range []string{"nobody@example.com", "Alice@Example.com"} {
		rec := env.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": email})
		req.Equal(http.StatusOK, rec.Code)
		req.Equal(map[string]string{"status": "ok"}, decode[map[string]string](t, rec))
	}
	req.NotEmpty(token)

	rec := env.do(t, http.MethodPost, "/api/auth/reset-password", map[string]string{"token": token, "newPassword": "Sup3r-secret"})
	req.Equal(http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	req.Equal("ok", body["status"])
	req.EqualValues(alice, body["userId"])

	user, err := env.users.GetUser(alice)
	req.NoError(err)
	match, err := auth.ComparePassword("Sup3r-secret", user.PasswordHash)
	req.NoError(err)
	req.True(match)

	// A token is single use
	rec = env.do(t, http.MethodPost, "/api/auth/reset-password", map[string]string{"token": token, "newPassword": "An0ther-secret"})
	req.Equal(http.StatusBadRequest, rec.Code)
}

func TestServer_ForgotPasswordRejectsMalformedEmail(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "not-an-email"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_WebsocketRequiresBearer(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	env.verifier.EXPECT().Verify(gomock.Any(), "expired").Return(nil, errors.ErrTokenExpired)

	for _, header := range []string{"", "Basic abc", "Bearer expired"} {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, r)

		req.Equal(http.StatusUnauthorized, rec.Code)
		req.Empty(rec.Body.String())
	}
}

func TestServer_WebsocketDelivery(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	alice, bob, mallory := env.user(t, "alice@example.com"), env.user(t, "bob@example.com"), env.user(t, "mallory@example.com")
	rec := env.do(t, http.MethodPost, "/api/chat/conversations", map[string]any{"participantUserIds": []int64{alice, bob}})
	conversationID := decode[idResponse](t, rec).ID
	base := fmt.Sprintf("/api/chat/conversations/%d", conversationID)

	env.verifier.EXPECT().
		Verify(gomock.Any(), "good").
		Return(&auth.Claims{Email: "bob@example.com", RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-bob"}}, nil)

	httpServer := httptest.NewServer(env.router)
	defer httpServer.Close()
	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer good"}})
	req.NoError(err)
	defer conn.Close()

	read := func() serverFrame {
		var frame serverFrame
		req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
		req.NoError(conn.ReadJSON(&frame))
		return frame
	}

	connected := read()
	req.Equal(frameConnected, connected.Type)
	req.NotEmpty(connected.SessionID)
	req.Equal(map[string]string{"userId": "sub-bob", "email": "bob@example.com"}, connected.Attributes)

	req.NoError(conn.WriteJSON(clientFrame{Type: framePing}))
	req.Equal(framePong, read().Type)

	// Only as bob, and only where bob participates
	req.NoError(conn.WriteJSON(clientFrame{Type: frameSubscribe, ConversationID: conversationID, UserID: mallory}))
	req.Equal(frameError, read().Type)
	other := decode[idResponse](t, env.do(t, http.MethodPost, "/api/chat/conversations", map[string]any{"participantUserIds": []int64{alice}})).ID
	req.NoError(conn.WriteJSON(clientFrame{Type: frameSubscribe, ConversationID: other, UserID: bob}))
	notParticipant := read()
	req.Equal(frameError, notParticipant.Type)
	req.Equal("not a participant", notParticipant.Error)
	req.NoError(conn.WriteJSON(clientFrame{Type: frameSubscribe, ConversationID: conversationID, UserID: bob}))
	req.Equal(frameSubscribed, read().Type)

	// When alice posts
	rec = env.do(t, http.MethodPost, base+"/messages", map[string]any{"senderUserId": alice, "body": "hello bob"})
	req.Equal(http.StatusOK, rec.Code)

	// Then bob's session receives it
	frame := read()
	req.Equal(frameMessage, frame.Type)
	req.Equal(conversationID, frame.ConversationID)
	req.Equal("hello bob", *frame.Message.Body)

	// And is told when he is removed
	rec = env.do(t, http.MethodDelete, fmt.Sprintf("%s/participants/%d", base, bob), nil)
	req.Equal(http.StatusNoContent, rec.Code)
	frame = read()
	req.Equal(frameParticipantRemoved, frame.Type)
	req.Equal(bob, frame.UserID)
}

func (e testEnv) dial(t *testing.T, url, token string, claims *auth.Claims) (*websocket.Conn, func() serverFrame) {
	e.verifier.EXPECT().Verify(gomock.Any(), token).Return(claims, nil)
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer " + token}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	read := func() serverFrame {
		var frame serverFrame
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, conn.ReadJSON(&frame))
		return frame
	}
	require.Equal(t, frameConnected, read().Type)
	return conn, read
}

func TestServer_WebsocketSubscribeIsBoundToIdentity(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	alice, bob := env.user(t, "alice@example.com"), env.user(t, "bob@example.com")
	env.user(t, "mallory@example.com")
	rec := env.do(t, http.MethodPost, "/api/chat/conversations", map[string]any{"participantUserIds": []int64{alice, bob}})
	conversationID := decode[idResponse](t, rec).ID

	httpServer := httptest.NewServer(env.router)
	defer httpServer.Close()
	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"

	// Given mallory is authenticated but not a participant
	mallory, readMallory := env.dial(t, url, "mallory-token",
		&auth.Claims{Email: "Mallory@Example.com", RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-mallory"}})
	// And a token without an email resolves to no user
	anonymous, readAnonymous := env.dial(t, url, "no-email-token",
		&auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-anonymous"}})

	// When both try to subscribe on behalf of participants
	for _, userID := range []int64{alice, bob, 0} {
		req.NoError(mallory.WriteJSON(clientFrame{Type: frameSubscribe, ConversationID: conversationID, UserID: userID}))
		frame := readMallory()
		req.Equal(frameError, frame.Type)
		req.Equal("forbidden user", frame.Error)
	}
	req.NoError(anonymous.WriteJSON(clientFrame{Type: frameSubscribe, ConversationID: conversationID, UserID: alice}))
	req.Equal("forbidden user", readAnonymous().Error)

	// Then a message alice posts is not delivered to them
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/chat/conversations/%d/messages", conversationID),
		map[string]any{"senderUserId": alice, "body": "private to alice and bob"})
	req.Equal(http.StatusOK, rec.Code)

	req.NoError(mallory.WriteJSON(clientFrame{Type: framePing}))
	req.Equal(framePong, readMallory().Type)
	req.NoError(anonymous.WriteJSON(clientFrame{Type: framePing}))
	req.Equal(framePong, readAnonymous().Type)
}

func TestServer_MessagesLimit(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice@example.com")
	rec := env.do(t, http.MethodPost, "/api/chat/conversations", map[string]any{"participantUserIds": []int64{alice}})
	require.Equal(t, http.StatusOK, rec.Code)
	base := fmt.Sprintf("/api/chat/conversations/%d/messages", decode[idResponse](t, rec).ID)
	for i := 0; i < 60; i++ {
		rec = env.do(t, http.MethodPost, base, map[string]any{"senderUserId": alice, "body": fmt.Sprintf("m%d", i)})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"default page", "", services.DefaultPageSize},
		{"positive limit", "?limit=5", 5},
		{"zero returns the recent window", "?limit=0", 60},
		{"negative returns the recent window", "?limit=-3", 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, base+tt.query, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			messages := decode[[]messageResponse](t, rec)
			require.Len(t, messages, tt.want)
			require.Equal(t, "m59", *messages[0].Body)
		})
	}
}
