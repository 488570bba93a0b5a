package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/theracare_telehealth/internal/domain"
	"github.com/immxrtalbeast/theracare_telehealth/internal/metrics"
	"github.com/immxrtalbeast/theracare_telehealth/internal/notify"
	"github.com/immxrtalbeast/theracare_telehealth/internal/notify/mocks"
	"github.com/immxrtalbeast/theracare_telehealth/internal/repository"
	"github.com/immxrtalbeast/theracare_telehealth/lib/logger/handlers/slogdiscard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notify.EmergencyNotice
}

func (n *recordingNotifier) Enqueue(notice notify.EmergencyNotice) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return true
}

type emergencyFixture struct {
	svc       *EmergencyService
	sessions  *repository.InMemorySessionRepository
	users     *repository.InMemoryUserRepository
	notifier  *recordingNotifier
	clinician *domain.User
	client    *domain.User
}

func newEmergencyFixture(t *testing.T) emergencyFixture {
	t.Helper()
	ctx := context.Background()

	sessions := repository.NewInMemorySessionRepository()
	users := repository.NewInMemoryUserRepository()
	notifier := &recordingNotifier{}

	clinician := domain.NewUser("Meredith", "Grey", "grey@example.com", domain.RoleTherapist)
	client := domain.NewUser("Pat", "Doe", "pat@example.com", domain.RoleClient)
	require.NoError(t, users.Create(ctx, clinician))
	require.NoError(t, users.Create(ctx, client))

	return emergencyFixture{
		svc:       NewEmergencyService(sessions, users, notifier, slogdiscard.NewDiscardLogger(), frontendURL),
		sessions:  sessions,
		users:     users,
		notifier:  notifier,
		clinician: clinician,
		client:    client,
	}
}

func (f emergencyFixture) caller() domain.Identity {
	return domain.Identity{UserID: f.clinician.ID, Role: f.clinician.Role, DisplayName: "gateway name"}
}

func TestEmergencyService_Create(t *testing.T) {
	f := newEmergencyFixture(t)
	ctx := context.Background()

	s, err := f.svc.CreateEmergency(ctx, f.caller(), f.client.ID)
	require.NoError(t, err)

	assert.True(t, s.IsEmergency)
	assert.Equal(t, domain.SessionStatusScheduled, s.Status)
	assert.Equal(t, "Emergency Session - Pat Doe", s.Title)
	assert.Equal(t, f.clinician.ID, s.HostID)
	require.NotNil(t, s.CounterpartID)
	assert.Equal(t, f.client.ID, *s.CounterpartID)
	require.NotEmpty(t, s.RoomID)
	assert.Equal(t, frontendURL+"/telehealth/join/"+s.RoomID, s.SessionURL)
	assert.WithinDuration(t, time.Now(), s.ScheduledAt, 5*time.Second)

	stored, err := f.sessions.GetByRoomID(ctx, s.RoomID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, stored.ID)

	require.Len(t, f.notifier.notices, 1)
	n := f.notifier.notices[0]
	assert.Equal(t, "pat@example.com", n.RecipientEmail)
	assert.Equal(t, s.SessionURL, n.SessionURL)
	assert.Equal(t, s.RoomID, n.RoomID)
	assert.Equal(t, s.ID, n.SessionID)
	assert.Equal(t, "Pat Doe", n.PatientName)
	assert.Equal(t, "Meredith Grey", n.ClinicianName)
}

func TestEmergencyService_CounterpartMissing(t *testing.T) {
	f := newEmergencyFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateEmergency(ctx, f.caller(), uuid.New())
	require.ErrorIs(t, err, ErrCounterpartNotFound)

	all, err := f.sessions.List(ctx, repository.SessionFilter{})
	require.NoError(t, err)
	assert.Empty(t, all, "no session may be created")
	assert.Empty(t, f.notifier.notices)
}

func TestEmergencyService_Guards(t *testing.T) {
	f := newEmergencyFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateEmergency(ctx, domain.Identity{UserID: f.client.ID, Role: domain.RoleClient}, f.client.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.CreateEmergency(ctx, admin, f.client.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.CreateEmergency(ctx, f.caller(), f.clinician.ID)
	assert.ErrorIs(t, err, ErrWrongRole)
}

func TestEmergencyService_NoEmailStillCreates(t *testing.T) {
	f := newEmergencyFixture(t)
	ctx := context.Background()

	silent := domain.NewUser("No", "Mail", "", domain.RoleClient)
	require.NoError(t, f.users.Create(ctx, silent))

	s, err := f.svc.CreateEmergency(ctx, f.caller(), silent.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, s.RoomID)
	assert.Empty(t, f.notifier.notices)
}

// The mailer here stalls until its context expires, like an SMTP server that
// accepted the connection and went quiet.
func TestEmergencyService_StalledMailDoesNotBlock(t *testing.T) {
	f := newEmergencyFixture(t)
	ctrl := gomock.NewController(t)
	mailer := mocks.NewMockMailer(ctrl)

	sendDone := make(chan error, 1)
	mailer.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ notify.Message) error {
			<-ctx.Done()
			sendDone <- ctx.Err()
			return ctx.Err()
		})

	d := notify.NewDispatcher(slogdiscard.NewDiscardLogger(), mailer, metrics.New(nil), notify.DispatcherConfig{
		Workers:     1,
		QueueSize:   1,
		SendTimeout: 300 * time.Millisecond,
	})
	svc := NewEmergencyService(f.sessions, f.users, d, slogdiscard.NewDiscardLogger(), frontendURL)

	begin := time.Now()
	s, err := svc.CreateEmergency(context.Background(), f.caller(), f.client.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, s.RoomID)
	assert.Less(t, time.Since(begin), 200*time.Millisecond)

	select {
	case err := <-sendDone:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("send was never bounded by its timeout")
	}
	d.Close()
}
