package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/theracare_telehealth/internal/metrics"
	"github.com/immxrtalbeast/theracare_telehealth/internal/notify"
	"github.com/immxrtalbeast/theracare_telehealth/internal/notify/mocks"
	"github.com/immxrtalbeast/theracare_telehealth/lib/logger/handlers/slogdiscard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func notice() notify.EmergencyNotice {
	return notify.EmergencyNotice{
		SessionID:      uuid.New(),
		RoomID:         "room-1",
		SessionURL:     "http://localhost:5173/telehealth/join/room-1",
		RecipientEmail: "patient@example.com",
		PatientName:    "Pat Doe",
		ClinicianName:  "Dr. Grey",
	}
}

func TestEmergencyNotice_Render(t *testing.T) {
	msg, err := notice().Render()
	require.NoError(t, err)

	assert.Equal(t, "patient@example.com", msg.To)
	assert.Equal(t, "Emergency Telehealth Session - Join Now", msg.Subject)
	assert.Contains(t, msg.Text, "http://localhost:5173/telehealth/join/room-1")
	assert.Contains(t, msg.Text, "Pat Doe")
	assert.Contains(t, msg.HTML, `href="http://localhost:5173/telehealth/join/room-1"`)
	assert.Contains(t, msg.HTML, "Dr. Grey")
}

func TestEmergencyNotice_RenderEscapesHTML(t *testing.T) {
	n := notice()
	n.PatientName = "<script>x</script>"

	msg, err := n.Render()
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
}

func TestDispatcher_Sends(t *testing.T) {
	ctrl := gomock.NewController(t)
	mailer := mocks.NewMockMailer(ctrl)

	sent := make(chan notify.Message, 1)
	mailer.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg notify.Message) error {
			sent <- msg
			return nil
		})

	reg := prometheus.NewRegistry()
	d := notify.NewDispatcher(slogdiscard.NewDiscardLogger(), mailer, metrics.New(reg), notify.DispatcherConfig{
		Workers:     2,
		QueueSize:   4,
		SendTimeout: time.Second,
	})

	require.True(t, d.Enqueue(notice()))

	select {
	case msg := <-sent:
		assert.Equal(t, "patient@example.com", msg.To)
	case <-time.After(2 * time.Second):
		t.Fatal("mailer was not called")
	}
	d.Close()
}

func TestDispatcher_FailureDoesNotRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	mailer := mocks.NewMockMailer(ctrl)
	mailer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("smtp down")).Times(1)

	d := notify.NewDispatcher(slogdiscard.NewDiscardLogger(), mailer, nil, notify.DispatcherConfig{
		Workers:     1,
		QueueSize:   1,
		SendTimeout: time.Second,
	})
	require.True(t, d.Enqueue(notice()))
	d.Close()
}

// blockingMailer holds every send until its context expires.
type blockingMailer struct {
	started chan struct{}
	once    sync.Once
}

func (m *blockingMailer) Send(ctx context.Context, _ notify.Message) error {
	m.once.Do(func() { close(m.started) })
	<-ctx.Done()
	return ctx.Err()
}

func TestDispatcher_EnqueueNeverBlocks(t *testing.T) {
	mailer := &blockingMailer{started: make(chan struct{})}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	d := notify.NewDispatcher(slogdiscard.NewDiscardLogger(), mailer, m, notify.DispatcherConfig{
		Workers:     1,
		QueueSize:   1,
		SendTimeout: 200 * time.Millisecond,
	})

	require.True(t, d.Enqueue(notice()))
	<-mailer.started

	begin := time.Now()
	accepted := 0
	for i := 0; i < 5; i++ {
		if d.Enqueue(notice()) {
			accepted++
		}
	}
	assert.Less(t, time.Since(begin), 100*time.Millisecond)
	assert.Less(t, accepted, 5, "a full queue must reject instead of blocking")

	d.Close()

	assert.Equal(t, float64(5-accepted), notificationCount(t, reg, "dropped"))
}

func TestDispatcher_EnqueueAfterClose(t *testing.T) {
	d := notify.NewDispatcher(slogdiscard.NewDiscardLogger(), notify.NewLogMailer(slogdiscard.NewDiscardLogger()), nil, notify.DispatcherConfig{})
	d.Close()
	d.Close()

	assert.False(t, d.Enqueue(notice()))
}

func notificationCount(t *testing.T, reg *prometheus.Registry, result string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "telehealth_notify_emails_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "result" && l.GetValue() == result {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
