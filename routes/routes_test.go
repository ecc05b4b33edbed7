package routes_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alumni-chat/config"
	"alumni-chat/models"
	"alumni-chat/routes"
	"alumni-chat/services"
	"alumni-chat/store/memstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
	Message string          `json:"message"`
}

type account struct {
	ID    string
	Token string
}

type testApp struct {
	handler http.Handler
	manager *services.WSManager
	tokens  *services.TokenService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	cfg := &config.Config{
		ServiceName:        "alumni-chat-test",
		Environment:        "test",
		RequestTimeout:     5 * time.Second,
		JWTSecret:          "test-secret",
		JWTIssuer:          "alumni-chat",
		JWTTTL:             time.Hour,
		StoreDriver:        config.DriverMemory,
		CORSAllowedOrigins: []string{"*"},
		WSPingInterval:     time.Second,
		WSPongTimeout:      5 * time.Second,
		WSWriteWait:        time.Second,
		WSSendBuffer:       64,
		WSReadLimit:        4096,
		MessageMaxLength:   2000,
	}
	log := zerolog.Nop()
	st := memstore.New()

	manager := services.NewWSManager(services.ClientOptions{
		PingInterval:   cfg.WSPingInterval,
		PongTimeout:    cfg.WSPongTimeout,
		WriteWait:      cfg.WSWriteWait,
		SendBuffer:     cfg.WSSendBuffer,
		ReadLimit:      cfg.WSReadLimit,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}, log)
	t.Cleanup(manager.Close)

	tokens := services.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	handler := routes.RegisterRoutes(routes.Dependencies{
		Config: cfg,
		Log:    log,
		Store:  st,
		Tokens: tokens,
		Users:  services.NewUserService(st),
		Chat:   services.NewChatService(st, manager, cfg.MessageMaxLength, log),
		WS:     manager,
	})
	return &testApp{handler: handler, manager: manager, tokens: tokens}
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func (a *testApp) register(t *testing.T, name string) account {
	t.Helper()
	code, env := a.do(t, http.MethodPost, "/api/register", "", gin.H{
		"name":     name,
		"email":    strings.ToLower(name) + "@alumni.test",
		"password": "password1",
		"batch":    "2020",
		"branch":   "CSE",
	})
	require.Equal(t, http.StatusCreated, code, env.Message)

	var data struct {
		Token string             `json:"token"`
		User  models.UserSummary `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Token)
	return account{ID: data.User.ID, Token: data.Token}
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestHealthEndpoints(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		app.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestAuth(t *testing.T) {
	app := newTestApp(t)
	alice := app.register(t, "Alice")

	code, env := app.do(t, http.MethodGet, "/api/chat/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, env.Success)

	code, _ = app.do(t, http.MethodGet, "/api/chat/conversations", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = app.do(t, http.MethodPost, "/api/login", "", gin.H{"email": "alice@alumni.test", "password": "password1"})
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	code, _ = app.do(t, http.MethodPost, "/api/login", "", gin.H{"email": "alice@alumni.test", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = app.do(t, http.MethodGet, "/api/userinfo", alice.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, alice.ID, decode[models.UserSummary](t, env.Data).ID)

	code, _ = app.do(t, http.MethodPost, "/api/register", "", gin.H{
		"name": "Alice Again", "email": "ALICE@alumni.test", "password": "password1",
	})
	assert.Equal(t, http.StatusConflict, code)
}

func TestConversationLifecycle(t *testing.T) {
	app := newTestApp(t)
	alice := app.register(t, "Alice")
	bob := app.register(t, "Bob")
	carol := app.register(t, "Carol")

	code, env := app.do(t, http.MethodPost, "/api/chat/conversations", alice.Token, gin.H{"recipient_id": bob.ID})
	require.Equal(t, http.StatusOK, code, env.Message)
	conv := decode[models.ConversationView](t, env.Data)
	assert.NotEmpty(t, conv.ConversationID)
	assert.Nil(t, conv.LastMessage)

	code, env = app.do(t, http.MethodGet, "/api/chat/conversations", alice.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[[]models.ConversationView](t, env.Data))

	messagesPath := "/api/chat/conversations/" + conv.ConversationID + "/messages"
	code, env = app.do(t, http.MethodPost, messagesPath, alice.Token, gin.H{"text": "hello"})
	require.Equal(t, http.StatusCreated, code, env.Message)
	sent := decode[models.MessageView](t, env.Data)
	assert.Equal(t, "hello", sent.Text)
	assert.Equal(t, "Alice", sent.Sender.Name)

	code, env = app.do(t, http.MethodGet, "/api/chat/conversations", bob.Token, nil)
	require.Equal(t, http.StatusOK, code)
	list := decode[[]models.ConversationView](t, env.Data)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].LastMessage)
	assert.Equal(t, "hello", list[0].LastMessage.Text)

	code, env = app.do(t, http.MethodGet, messagesPath, bob.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]models.MessageView](t, env.Data), 1)
	assert.EqualValues(t, 1, env.Meta["count"])

	code, env = app.do(t, http.MethodGet, messagesPath, carol.Token, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.False(t, env.Success)

	code, _ = app.do(t, http.MethodPost, messagesPath, carol.Token, gin.H{"text": "hi"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = app.do(t, http.MethodGet, "/api/chat/conversations/unknown/messages", alice.Token, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = app.do(t, http.MethodPost, messagesPath, alice.Token, gin.H{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = app.do(t, http.MethodDelete, "/api/chat/conversations/"+conv.ConversationID, bob.Token, nil)
	assert.Equal(t, http.StatusOK, code)

	code, env = app.do(t, http.MethodGet, "/api/chat/conversations", alice.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[[]models.ConversationView](t, env.Data))
}

func TestCreateConversationErrors(t *testing.T) {
	app := newTestApp(t)
	alice := app.register(t, "Alice")

	code, env := app.do(t, http.MethodPost, "/api/chat/conversations", alice.Token, gin.H{"recipient_id": alice.ID})
	assert.Equal(t, http.StatusForbidden, code)
	assert.False(t, env.Success)

	code, env = app.do(t, http.MethodPost, "/api/chat/conversations", alice.Token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Recipient ID is required", env.Message)

	code, _ = app.do(t, http.MethodPost, "/api/chat/conversations", alice.Token, gin.H{"recipient_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, code)
}

type wsEvent struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id"`
	Data           json.RawMessage `json:"data"`
}

func readEvent(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev wsEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func wsURL(serverURL, token string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws?token=" + token
}

func TestWebSocketDeliversMessagesInOrder(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(app.handler)
	t.Cleanup(srv.Close)

	alice := app.register(t, "Alice")
	bob := app.register(t, "Bob")

	code, env := app.do(t, http.MethodPost, "/api/chat/conversations", alice.Token, gin.H{"recipient_id": bob.ID})
	require.Equal(t, http.StatusOK, code)
	conv := decode[models.ConversationView](t, env.Data)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv.URL, bob.Token), nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })

	connected := readEvent(t, conn)
	require.Equal(t, services.EventConnected, connected.Type)

	require.NoError(t, conn.WriteJSON(services.ClientFrame{
		Type:           services.EventJoinConversation,
		ConversationID: conv.ConversationID,
	}))
	joined := readEvent(t, conn)
	require.Equal(t, services.EventJoined, joined.Type)
	require.Equal(t, conv.ConversationID, joined.ConversationID)

	messagesPath := "/api/chat/conversations/" + conv.ConversationID + "/messages"
	for _, text := range []string{"m1", "m2"} {
		code, _ := app.do(t, http.MethodPost, messagesPath, alice.Token, gin.H{"text": text})
		require.Equal(t, http.StatusCreated, code)
	}

	var texts []string
	updates := 0
	for len(texts) < 2 || updates < 2 {
		ev := readEvent(t, conn)
		switch ev.Type {
		case services.EventNewMessage:
			texts = append(texts, decode[models.MessageView](t, ev.Data).Text)
		case services.EventUpdateConversation:
			updates++
			view := decode[models.ConversationView](t, ev.Data)
			require.NotNil(t, view.LastMessage)
		}
	}
	assert.Equal(t, []string{"m1", "m2"}, texts)
}

func TestWebSocketUpdateReachesPersonalRoomWithoutJoin(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(app.handler)
	t.Cleanup(srv.Close)

	alice := app.register(t, "Alice")
	bob := app.register(t, "Bob")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL, bob.Token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Equal(t, services.EventConnected, readEvent(t, conn).Type)

	code, env := app.do(t, http.MethodPost, "/api/chat/conversations", alice.Token, gin.H{"recipient_id": bob.ID})
	require.Equal(t, http.StatusOK, code)
	conv := decode[models.ConversationView](t, env.Data)

	code, _ = app.do(t, http.MethodPost, "/api/chat/conversations/"+conv.ConversationID+"/messages", alice.Token, gin.H{"text": "ping me"})
	require.Equal(t, http.StatusCreated, code)

	ev := readEvent(t, conn)
	assert.Equal(t, services.EventUpdateConversation, ev.Type)
	view := decode[models.ConversationView](t, ev.Data)
	require.NotNil(t, view.LastMessage)
	assert.Equal(t, "ping me", view.LastMessage.Text)
}

func TestWebSocketRejectsBadHandshake(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(app.handler)
	t.Cleanup(srv.Close)

	for _, token := range []string{"", "garbage"} {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv.URL, token), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestWebSocketRejectsTokenOfUnknownUser(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(app.handler)
	t.Cleanup(srv.Close)

	token, err := app.tokens.GenerateToken("deleted-user")
	require.NoError(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv.URL, token), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, app.manager.RoomSize(services.RoomForUser("deleted-user")))
}
