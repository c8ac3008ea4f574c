package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tariel-x/lookbook/internal/events"
	"github.com/tariel-x/lookbook/internal/metrics"
	"github.com/tariel-x/lookbook/internal/models"

	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 32

// NotificationInput is an admin-authored message.
type NotificationInput struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
	Icon  string `json:"icon"`
	Image string `json:"image"`
	Tag   string `json:"tag"`
}

// SendResult always satisfies Total == Successful + Failed.
type SendResult struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

type action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

type envelope struct {
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Icon      string            `json:"icon"`
	Badge     string            `json:"badge"`
	Image     string            `json:"image,omitempty"`
	URL       string            `json:"url"`
	Tag       string            `json:"tag"`
	Data      map[string]string `json:"data"`
	Actions   []action          `json:"actions"`
	Timestamp int64             `json:"timestamp"`
}

var envelopeActions = []action{
	{Action: "open", Title: "Open"},
	{Action: "close", Title: "Close"},
}

// Subscriptions is the registry side the dispatcher needs.
type Subscriptions interface {
	ListActive(ctx context.Context) ([]models.PushSubscription, error)
	Deactivate(ctx context.Context, endpoint string) error
}

type HistoryWriter interface {
	Record(ctx context.Context, rec *models.NotificationRecord) error
}

type DispatcherOptions struct {
	DeadStatuses []int
	Concurrency  int
	DefaultIcon  string
	DefaultBadge string
	DefaultTag   string
	Logger       *slog.Logger
	Events       events.Publisher
	Metrics      *metrics.Metrics
}

type Dispatcher struct {
	subs       Subscriptions
	transport  Transport
	recorder   HistoryWriter
	classifier Classifier
	opts       DispatcherOptions
	logger     *slog.Logger
	nowFn      func() time.Time
}

func NewDispatcher(subs Subscriptions, transport Transport, recorder HistoryWriter, opts DispatcherOptions) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		subs:       subs,
		transport:  transport,
		recorder:   recorder,
		classifier: NewClassifier(opts.DeadStatuses),
		opts:       opts,
		logger:     logger,
		nowFn:      time.Now,
	}
}

// Send broadcasts one message to every active subscription and waits for all
// deliveries to settle. There are no retries within a call. The batch is
// detached from ctx cancellation once it starts.
func (d *Dispatcher) Send(ctx context.Context, input NotificationInput) (*SendResult, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Body = strings.TrimSpace(input.Body)
	if input.Title == "" {
		return nil, &ValidationError{Field: "title", Message: "is required"}
	}
	if input.Body == "" {
		return nil, &ValidationError{Field: "body", Message: "is required"}
	}

	ctx = context.WithoutCancel(ctx)

	subs, err := d.subs.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		d.logger.InfoContext(ctx, "push send skipped: no active subscriptions", "title", input.Title)
		return &SendResult{}, nil
	}

	env := d.envelope(input)
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode push payload: %w", err)
	}

	outcomes := make([]DeliveryOutcome, len(subs))
	var g errgroup.Group
	g.SetLimit(d.opts.Concurrency)
	for i, sub := range subs {
		g.Go(func() error {
			outcomes[i] = d.deliver(ctx, sub, payload)
			return nil
		})
	}
	_ = g.Wait()

	result := fold(outcomes)

	rec := &models.NotificationRecord{
		Title:           env.Title,
		Body:            env.Body,
		URL:             env.URL,
		Icon:            env.Icon,
		Image:           env.Image,
		Tag:             env.Tag,
		RecipientsCount: result.Total,
		SuccessCount:    result.Successful,
		FailureCount:    result.Failed,
		SentAt:          d.nowFn(),
	}
	if err := d.recorder.Record(ctx, rec); err != nil {
		d.logger.ErrorContext(ctx, "failed to record push notification", "error", err)
	}

	d.opts.Metrics.PushSend()
	if d.opts.Events != nil {
		d.opts.Events.Publish(events.Event{Type: events.TypePushSent, At: rec.SentAt, Data: result})
	}
	d.logger.InfoContext(ctx, "push notification sent",
		"title", env.Title,
		"total", result.Total,
		"successful", result.Successful,
		"failed", result.Failed,
	)
	return &result, nil
}

func (d *Dispatcher) envelope(in NotificationInput) envelope {
	env := envelope{
		Title:     in.Title,
		Body:      in.Body,
		Icon:      firstNonEmpty(in.Icon, d.opts.DefaultIcon),
		Badge:     d.opts.DefaultBadge,
		Image:     strings.TrimSpace(in.Image),
		URL:       firstNonEmpty(in.URL, "/"),
		Tag:       firstNonEmpty(in.Tag, d.opts.DefaultTag),
		Actions:   envelopeActions,
		Timestamp: d.nowFn().UnixMilli(),
	}
	env.Data = map[string]string{"url": env.URL}
	return env
}

// deliver settles one subscription. A permanent outcome deactivates the
// endpoint before returning; that write failing is logged only.
func (d *Dispatcher) deliver(ctx context.Context, sub models.PushSubscription, payload []byte) (out DeliveryOutcome) {
	out = DeliveryOutcome{SubscriptionID: sub.ID, Endpoint: sub.Endpoint}
	defer func() {
		if r := recover(); r != nil {
			out.Outcome = OutcomeTransient
			out.Err = fmt.Errorf("transport panic: %v", r)
			d.logger.ErrorContext(ctx, "push delivery panicked", "endpoint", sub.Endpoint, "panic", r)
		}
		d.opts.Metrics.PushDelivery(string(out.Outcome))
	}()

	status, err := d.transport.Deliver(ctx, Target{
		Endpoint: sub.Endpoint,
		P256DH:   sub.P256DH,
		Auth:     sub.Auth,
	}, payload)
	out.Status = status
	out.Err = err
	out.Outcome = d.classifier.Classify(status, err)

	switch out.Outcome {
	case OutcomeSuccess:
	case OutcomePermanent:
		d.logger.WarnContext(ctx, "push endpoint gone, deactivating", "endpoint", sub.Endpoint, "status", status)
		if derr := d.subs.Deactivate(ctx, sub.Endpoint); derr != nil {
			d.logger.ErrorContext(ctx, "failed to deactivate subscription", "endpoint", sub.Endpoint, "error", derr)
		}
	default:
		d.logger.WarnContext(ctx, "push delivery failed", "endpoint", sub.Endpoint, "status", status, "error", err)
	}
	return out
}

func fold(outcomes []DeliveryOutcome) SendResult {
	res := SendResult{Total: len(outcomes)}
	for _, o := range outcomes {
		if o.Outcome == OutcomeSuccess {
			res.Successful++
		} else {
			res.Failed++
		}
	}
	return res
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
