package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/theracare_telehealth/internal/config"
	"github.com/immxrtalbeast/theracare_telehealth/internal/domain"
	"github.com/immxrtalbeast/theracare_telehealth/lib/logger/handlers/slogdiscard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, app *testApp) string {
	t.Helper()

	srv := httptest.NewServer(app.router)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, base, roomID string, who domain.Identity) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	if !who.Anonymous() {
		header.Set(HeaderUserID, who.UserID.String())
		header.Set(HeaderUserRole, string(who.Role))
		header.Set(HeaderUserName, who.DisplayName)
	}

	ws, resp, err := websocket.DefaultDialer.Dial(base+"/ws/video/"+roomID, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readJSON(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// expectSilence must be the last read on ws: a timed-out gorilla connection
// cannot be read again.
func expectSilence(t *testing.T, ws *websocket.Conn) {
	t.Helper()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, data, err := ws.ReadMessage()
	require.Error(t, err, "unexpected frame %s", data)
}

func waitPresence(t *testing.T, app *testApp, roomID string, want int) {
	t.Helper()

	require.Eventually(t, func() bool {
		n, err := app.presence.Count(context.Background(), roomID)
		return err == nil && n == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSignalSocket_RelaysToOthersOnly(t *testing.T) {
	app := newTestApp(t)
	therapist := app.user(t, "Meredith", domain.RoleTherapist, "")
	client := app.user(t, "Pat", domain.RoleClient, "")
	room := app.roomFor(t, therapist)
	base := startServer(t, app)

	a := dial(t, base, room, therapist)
	b := dial(t, base, room, client)
	waitPresence(t, app, room, 2)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":"join"}`)))
	joined := readJSON(t, b)
	assert.Equal(t, "participant_joined", joined["type"])
	assert.Equal(t, therapist.UserID.String(), joined["user_id"])

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":"offer","sdp":"v=0"}`)))
	offer := readJSON(t, b)
	assert.Equal(t, "offer", offer["type"])
	assert.Equal(t, "v=0", offer["sdp"])

	expectSilence(t, a)
}

func TestSignalSocket_MalformedFrameKeepsConnection(t *testing.T) {
	app := newTestApp(t)
	therapist := app.user(t, "Meredith", domain.RoleTherapist, "")
	room := app.roomFor(t, therapist)
	base := startServer(t, app)

	a := dial(t, base, room, therapist)
	b := dial(t, base, room, domain.Identity{})
	waitPresence(t, app, room, 2)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{{{`)))
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":"teleport"}`)))
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":"chat","text":"hello"}`)))

	msg := readJSON(t, b)
	assert.Equal(t, "chat", msg["type"])
	assert.Equal(t, "hello", msg["text"])
}

func TestSignalSocket_DisconnectNotifiesRoom(t *testing.T) {
	app := newTestApp(t)
	therapist := app.user(t, "Meredith", domain.RoleTherapist, "")
	client := app.user(t, "Pat", domain.RoleClient, "")
	room := app.roomFor(t, therapist)
	base := startServer(t, app)

	a := dial(t, base, room, therapist)
	b := dial(t, base, room, client)
	waitPresence(t, app, room, 2)

	require.NoError(t, b.Close())

	left := readJSON(t, a)
	assert.Equal(t, "participant_left", left["type"])
	assert.Equal(t, client.UserID.String(), left["user_id"])
	waitPresence(t, app, room, 1)
}

func TestSignalSocket_RejectsBeforeUpgrade(t *testing.T) {
	app := newTestApp(t)
	therapist := app.user(t, "Meredith", domain.RoleTherapist, "")
	room := app.roomFor(t, therapist)
	base := startServer(t, app)

	_, resp, err := websocket.DefaultDialer.Dial(base+"/ws/video/no-such-room", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()

	s, err := app.sessions.GetByRoomID(context.Background(), room)
	require.NoError(t, err)
	change, err := s.Apply(domain.TransitionCancel, time.Now())
	require.NoError(t, err)
	require.NoError(t, app.sessions.UpdateStatus(context.Background(), s.ID, change))

	_, resp, err = websocket.DefaultDialer.Dial(base+"/api/telehealth/rooms/"+room+"/ws", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	_ = resp.Body.Close()

	n, err := app.presence.Count(context.Background(), room)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSignalSocket_MissingPongDropsConnection(t *testing.T) {
	app := newTestApp(t)
	therapist := app.user(t, "Meredith", domain.RoleTherapist, "")
	client := app.user(t, "Pat", domain.RoleClient, "")
	room := app.roomFor(t, therapist)
	base := startServer(t, app)

	a := dial(t, base, room, therapist)
	// b never reads, so it never answers the server's pings.
	dial(t, base, room, client)
	waitPresence(t, app, room, 2)

	require.NoError(t, a.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := a.ReadMessage()
	require.NoError(t, err)

	var left map[string]any
	require.NoError(t, json.Unmarshal(data, &left))
	assert.Equal(t, "participant_left", left["type"])
	assert.Equal(t, client.UserID.String(), left["user_id"])
	waitPresence(t, app, room, 1)
}

func TestSignalSocket_RefusesJoinsAfterShutdown(t *testing.T) {
	gin.SetMode(gin.TestMode)

	base, cancel := context.WithCancel(context.Background())
	cancel()

	signals := NewSignalController(base, nil, slogdiscard.NewDiscardLogger(), config.SignalingConfig{}, []string{"*"})
	router := gin.New()
	router.GET("/ws/video/:roomID", signals.JoinRoom)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws/video/any-room", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	done := make(chan struct{})
	go func() {
		signals.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait blocked after a refused join")
	}
}
