package push

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tariel-x/lookbook/internal/events"
	"github.com/tariel-x/lookbook/internal/models"

	"github.com/stretchr/testify/require"
)

type scriptedTransport struct {
	mu       sync.Mutex
	statuses map[string]int
	errs     map[string]error
	payloads [][]byte
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (s *scriptedTransport) Deliver(ctx context.Context, target Target, payload []byte) (int, error) {
	s.calls.Add(1)
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		prev := s.maxSeen.Load()
		if n <= prev || s.maxSeen.CompareAndSwap(prev, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	s.payloads = append(s.payloads, payload)
	s.mu.Unlock()

	if err := s.errs[target.Endpoint]; err != nil {
		return 0, err
	}
	if status, ok := s.statuses[target.Endpoint]; ok {
		return status, nil
	}
	return 201, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

type failingDeactivator struct {
	subs        []models.PushSubscription
	deactivated atomic.Int32
}

func (f *failingDeactivator) ListActive(context.Context) ([]models.PushSubscription, error) {
	return f.subs, nil
}

func (f *failingDeactivator) Deactivate(context.Context, string) error {
	f.deactivated.Add(1)
	return errors.New("database is locked")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func subscribe(t *testing.T, reg *Registry, endpoints ...string) {
	t.Helper()
	for _, ep := range endpoints {
		_, err := reg.Upsert(context.Background(), SubscriptionInput{Endpoint: ep, P256DH: "p256", Auth: "auth"})
		require.NoError(t, err)
	}
}

func TestSendMixedOutcomesDeactivatesDeadEndpoint(t *testing.T) {
	db := newTestDB(t)
	reg := NewRegistry(db)
	rec := NewRecorder(db)
	subscribe(t, reg, "https://push.example/ok", "https://push.example/gone")

	transport := &scriptedTransport{statuses: map[string]int{"https://push.example/gone": 410}}
	pub := &recordingPublisher{}
	d := NewDispatcher(reg, transport, rec, DispatcherOptions{Logger: quietLogger(), Events: pub})

	res, err := d.Send(context.Background(), NotificationInput{Title: "New drop", Body: "Autumn 2027 is live"})
	require.NoError(t, err)
	require.Equal(t, SendResult{Total: 2, Successful: 1, Failed: 1}, *res)

	active, err := reg.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "https://push.example/ok", active[0].Endpoint)

	history, err := rec.History(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, 2, history[0].RecipientsCount)
	require.Equal(t, 1, history[0].SuccessCount)
	require.Equal(t, 1, history[0].FailureCount)

	require.Len(t, pub.events, 1)
	require.Equal(t, events.TypePushSent, pub.events[0].Type)
}

func TestSendTransientFailureKeepsSubscriptionActive(t *testing.T) {
	db := newTestDB(t)
	reg := NewRegistry(db)
	subscribe(t, reg, "https://push.example/a", "https://push.example/b", "https://push.example/c")

	transport := &scriptedTransport{
		statuses: map[string]int{"https://push.example/b": 503},
		errs:     map[string]error{"https://push.example/c": errors.New("connection reset")},
	}
	d := NewDispatcher(reg, transport, NewRecorder(db), DispatcherOptions{Logger: quietLogger()})

	res, err := d.Send(context.Background(), NotificationInput{Title: "t", Body: "b"})
	require.NoError(t, err)
	require.Equal(t, 3, res.Total)
	require.Equal(t, 1, res.Successful)
	require.Equal(t, res.Total, res.Successful+res.Failed)

	active, err := reg.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 3)
}

func TestSendWithNoSubscribersDeliversNothing(t *testing.T) {
	db := newTestDB(t)
	reg := NewRegistry(db)
	rec := NewRecorder(db)
	transport := &scriptedTransport{}
	d := NewDispatcher(reg, transport, rec, DispatcherOptions{Logger: quietLogger()})

	res, err := d.Send(context.Background(), NotificationInput{Title: "Hello", Body: "World"})
	require.NoError(t, err)
	require.Equal(t, SendResult{}, *res)
	require.Zero(t, transport.calls.Load())

	history, err := rec.History(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestSendRejectsEmptyTitleOrBody(t *testing.T) {
	transport := &scriptedTransport{}
	d := NewDispatcher(&failingDeactivator{}, transport, NewRecorder(newTestDB(t)), DispatcherOptions{Logger: quietLogger()})

	_, err := d.Send(context.Background(), NotificationInput{Title: "  ", Body: "b"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "title", verr.Field)

	_, err = d.Send(context.Background(), NotificationInput{Title: "t"})
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "body", verr.Field)
	require.Zero(t, transport.calls.Load())
}

func TestSendDeactivationFailureIsNotEscalated(t *testing.T) {
	subs := &failingDeactivator{subs: []models.PushSubscription{
		{ID: "1", Endpoint: "https://push.example/gone"},
		{ID: "2", Endpoint: "https://push.example/ok"},
	}}
	transport := &scriptedTransport{statuses: map[string]int{"https://push.example/gone": 404}}
	d := NewDispatcher(subs, transport, NewRecorder(newTestDB(t)), DispatcherOptions{Logger: quietLogger()})

	res, err := d.Send(context.Background(), NotificationInput{Title: "t", Body: "b"})
	require.NoError(t, err)
	require.Equal(t, SendResult{Total: 2, Successful: 1, Failed: 1}, *res)
	require.Equal(t, int32(1), subs.deactivated.Load())
}

func TestSendRespectsConcurrencyLimitAndWaitsForAll(t *testing.T) {
	subs := &failingDeactivator{}
	for i := 0; i < 20; i++ {
		subs.subs = append(subs.subs, models.PushSubscription{Endpoint: "https://push.example/" + string(rune('a'+i))})
	}
	transport := &scriptedTransport{delay: 5 * time.Millisecond}
	d := NewDispatcher(subs, transport, NewRecorder(newTestDB(t)), DispatcherOptions{Logger: quietLogger(), Concurrency: 4})

	res, err := d.Send(context.Background(), NotificationInput{Title: "t", Body: "b"})
	require.NoError(t, err)
	require.Equal(t, 20, res.Total)
	require.Equal(t, 20, res.Successful)
	require.Equal(t, int32(20), transport.calls.Load())
	require.LessOrEqual(t, transport.maxSeen.Load(), int32(4))
}

func TestSendSurvivesCanceledRequestContext(t *testing.T) {
	subs := &failingDeactivator{subs: []models.PushSubscription{{Endpoint: "https://push.example/a"}}}
	d := NewDispatcher(subs, &scriptedTransport{}, NewRecorder(newTestDB(t)), DispatcherOptions{Logger: quietLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := d.Send(ctx, NotificationInput{Title: "t", Body: "b"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Successful)
}

func TestEnvelopeDefaults(t *testing.T) {
	subs := &failingDeactivator{subs: []models.PushSubscription{{Endpoint: "https://push.example/a"}}}
	transport := &scriptedTransport{}
	d := NewDispatcher(subs, transport, NewRecorder(newTestDB(t)), DispatcherOptions{
		Logger:       quietLogger(),
		DefaultIcon:  "/icons/icon-192.png",
		DefaultBadge: "/icons/badge-72.png",
		DefaultTag:   "lookbook",
	})
	d.nowFn = func() time.Time { return time.UnixMilli(1_790_000_000_000) }

	_, err := d.Send(context.Background(), NotificationInput{Title: "t", Body: "b"})
	require.NoError(t, err)
	require.Len(t, transport.payloads, 1)

	var got map[string]any
	require.NoError(t, json.Unmarshal(transport.payloads[0], &got))
	require.Equal(t, "/", got["url"])
	require.Equal(t, "lookbook", got["tag"])
	require.Equal(t, "/icons/icon-192.png", got["icon"])
	require.Equal(t, "/icons/badge-72.png", got["badge"])
	require.Equal(t, map[string]any{"url": "/"}, got["data"])
	require.NotContains(t, got, "image")
	require.Len(t, got["actions"], 2)
	require.EqualValues(t, 1_790_000_000_000, got["timestamp"])
}
