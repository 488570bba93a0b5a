package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/immxrtalbeast/theracare_telehealth/internal/broker"
	"github.com/immxrtalbeast/theracare_telehealth/internal/config"
	"github.com/immxrtalbeast/theracare_telehealth/internal/domain"
	"github.com/immxrtalbeast/theracare_telehealth/internal/metrics"
	"github.com/immxrtalbeast/theracare_telehealth/internal/notify"
	"github.com/immxrtalbeast/theracare_telehealth/internal/presence"
	"github.com/immxrtalbeast/theracare_telehealth/internal/repository"
	"github.com/immxrtalbeast/theracare_telehealth/internal/service"
	"github.com/immxrtalbeast/theracare_telehealth/lib/logger/handlers/slogdiscard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	router   *gin.Engine
	sessions *repository.InMemorySessionRepository
	users    *repository.InMemoryUserRepository
	presence *presence.Memory
	signals  *SignalController
	mails    chan notify.Message
}

type chanMailer chan notify.Message

func (m chanMailer) Send(_ context.Context, msg notify.Message) error {
	m <- msg
	return nil
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := slogdiscard.NewDiscardLogger()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	sessions := repository.NewInMemorySessionRepository()
	users := repository.NewInMemoryUserRepository()
	tracker := presence.NewMemory(time.Hour)
	b := broker.NewMemory(log, broker.WithDropHook(func(string) { m.FrameDropped("slow_subscriber") }))

	mails := make(chan notify.Message, 4)
	dispatcher := notify.NewDispatcher(log, chanMailer(mails), m, notify.DispatcherConfig{Workers: 1, QueueSize: 4, SendTimeout: time.Second})
	t.Cleanup(dispatcher.Close)

	base, cancel := context.WithCancel(context.Background())

	signalCfg := config.SignalingConfig{
		PingPeriod: time.Second,
		PongWait:   2 * time.Second,
		WriteWait:  time.Second,
		ReadLimit:  64 * 1024,
		SendBuffer: 16,
	}
	signals := NewSignalController(base, service.NewSignalService(sessions, tracker, b, log, m), log, signalCfg, []string{"*"})
	t.Cleanup(func() {
		cancel()
		signals.Wait()
	})

	router := SetupRouter(
		RouterConfig{AllowedOrigins: []string{"http://localhost:5173"}, Metrics: reg},
		NewSessionController(
			service.NewSessionService(sessions, tracker, log, m, "http://localhost:5173"),
			service.NewEmergencyService(sessions, users, dispatcher, log, "http://localhost:5173"),
			log,
		),
		signals,
		NewICEController(config.WebRTCConfig{
			STUNServers: []string{"stun:stun.l.google.com:19302"},
			TURNServers: []string{"turn:turn.example.com:3478"},
			TURNUser:    "relay",
			TURNPass:    "secret",
		}),
		NewUserController(service.NewUserService(users, log), log),
	)

	return &testApp{
		router:   router,
		sessions: sessions,
		users:    users,
		presence: tracker,
		signals:  signals,
		mails:    mails,
	}
}

func (a *testApp) user(t *testing.T, first string, role domain.Role, email string) domain.Identity {
	t.Helper()

	u := domain.NewUser(first, "Test", email, role)
	require.NoError(t, a.users.Create(context.Background(), u))
	return domain.Identity{UserID: u.ID, Role: role, DisplayName: u.DisplayName()}
}

// roomFor stores a scheduled session with a room and returns the room id.
func (a *testApp) roomFor(t *testing.T, host domain.Identity) string {
	t.Helper()

	s := domain.NewSession("Check-in", host.UserID, nil, time.Now().Add(time.Hour), 0)
	s.RoomID = domain.NewRoomID()
	require.NoError(t, a.sessions.Create(context.Background(), s))
	return s.RoomID
}

func (a *testApp) do(t *testing.T, who domain.Identity, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if !who.Anonymous() {
		req.Header.Set(HeaderUserID, who.UserID.String())
		req.Header.Set(HeaderUserRole, string(who.Role))
		req.Header.Set(HeaderUserName, who.DisplayName)
	}

	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

type sessionEnvelope struct {
	Session struct {
		ID          uuid.UUID  `json:"id"`
		Status      string     `json:"status"`
		RoomID      string     `json:"room_id"`
		SessionURL  string     `json:"session_url"`
		IsEmergency bool       `json:"is_emergency"`
		Notes       string     `json:"notes"`
		StartedAt   *time.Time `json:"started_at"`
		EndedAt     *time.Time `json:"ended_at"`
	} `json:"session"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}
