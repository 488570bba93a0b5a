package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/immxrtalbeast/theracare_telehealth/internal/metrics"
	"github.com/immxrtalbeast/theracare_telehealth/lib/logger/sl"
	"github.com/sourcegraph/conc/pool"
)

type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// Dispatcher sends emergency notices in the background. Enqueue never blocks:
// when the queue is full the notice is logged and dropped. Failed sends are
// not retried.
type Dispatcher struct {
	log         *slog.Logger
	mailer      Mailer
	metrics     *metrics.Metrics
	sendTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan EmergencyNotice
	done   chan struct{}
}

func NewDispatcher(log *slog.Logger, mailer Mailer, m *metrics.Metrics, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}

	d := &Dispatcher{
		log:         log,
		mailer:      mailer,
		metrics:     m,
		sendTimeout: cfg.SendTimeout,
		queue:       make(chan EmergencyNotice, cfg.QueueSize),
		done:        make(chan struct{}),
	}
	go d.run(cfg.Workers)

	return d
}

// Enqueue reports whether the notice was accepted.
func (d *Dispatcher) Enqueue(n EmergencyNotice) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	log := d.log.With(
		slog.String("op", "notify.Dispatcher.Enqueue"),
		slog.String("session_id", n.SessionID.String()),
		slog.String("recipient", n.RecipientEmail),
	)

	if d.closed {
		d.metrics.Notification("dropped")
		log.Error("dispatcher closed, notice dropped", slog.String("event_type", "emergency_session_email_failed"))
		return false
	}

	select {
	case d.queue <- n:
		return true
	default:
		d.metrics.Notification("dropped")
		log.Error("notification queue full, notice dropped", slog.String("event_type", "emergency_session_email_failed"))
		return false
	}
}

// Close stops accepting notices and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
}

func (d *Dispatcher) run(workers int) {
	defer close(d.done)

	p := pool.New().WithMaxGoroutines(workers)
	for n := range d.queue {
		p.Go(func() {
			d.deliver(n)
		})
	}
	p.Wait()
}

func (d *Dispatcher) deliver(n EmergencyNotice) {
	log := d.log.With(
		slog.String("op", "notify.Dispatcher.deliver"),
		slog.String("session_id", n.SessionID.String()),
		slog.String("recipient", n.RecipientEmail),
	)

	defer func() {
		if r := recover(); r != nil {
			d.metrics.Notification("failed")
			log.Error("mailer panicked", slog.String("panic", fmt.Sprint(r)))
		}
	}()

	msg, err := n.Render()
	if err != nil {
		d.metrics.Notification("failed")
		log.Error("failed to render emergency email", sl.Err(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	if err := d.mailer.Send(ctx, msg); err != nil {
		d.metrics.Notification("failed")
		log.Error("failed to send emergency email",
			slog.String("event_type", "emergency_session_email_failed"),
			sl.Err(err),
		)
		return
	}

	d.metrics.Notification("sent")
	log.Info("emergency email sent", slog.String("event_type", "emergency_session_email_sent"))
}
