// Package audit streams moderation decisions to Kafka.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/high-moctane/modguard"
)

const (
	TypeVerdictIssued  = "verdict.issued"
	TypeVerdictCleared = "verdict.cleared"
	TypePlayerEnforced = "player.enforced"
	TypePlayerKicked   = "player.kicked"
)

const (
	defaultSource       = "modguard"
	defaultFlushTimeout = 5 * time.Second
)

// Event is the envelope written to the topic.
type Event struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Payload   map[string]any `json:"payload"`
}

func NewEvent(eventType, source string, now time.Time, payload map[string]any) Event {
	if payload == nil {
		payload = make(map[string]any)
	}
	return Event{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: now.UTC(),
		Source:    source,
		Payload:   payload,
	}
}

// MessageWriter is the part of *kafka.Writer the Publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns a writer for topic on brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
}

var _ modguard.Observer = (*Publisher)(nil)

// Publisher is a modguard.Observer that queues an Event for every verdict
// and kick. Run drains the queue into the writer. When the queue is full,
// events are dropped and logged.
type Publisher struct {
	modguard.NopObserver

	w            MessageWriter
	queue        chan kafka.Message
	source       string
	flushTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

type Option struct {
	// Source fills Event.Source. Defaults to "modguard".
	Source string

	// QueueSize defaults to 256.
	QueueSize int

	// FlushTimeout bounds the final write of queued events on shutdown.
	// Defaults to 5s.
	FlushTimeout time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

func NewPublisher(w MessageWriter, opt *Option) *Publisher {
	if opt == nil {
		opt = &Option{}
	}
	p := &Publisher{
		w:            w,
		source:       opt.Source,
		flushTimeout: opt.FlushTimeout,
		logger:       opt.Logger,
		now:          opt.Now,
	}
	size := opt.QueueSize
	if size <= 0 {
		size = 256
	}
	p.queue = make(chan kafka.Message, size)
	if p.source == "" {
		p.source = defaultSource
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.flushTimeout <= 0 {
		p.flushTimeout = defaultFlushTimeout
	}
	return p
}

// Run writes queued events until ctx is done. Events still queued then are
// flushed before the writer is closed.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.flush(ctx)
			return errors.Join(ctx.Err(), p.w.Close())

		case msg := <-p.queue:
			if err := p.w.WriteMessages(ctx, msg); err != nil {
				p.logger.WarnContext(ctx, "failed to write audit event", "key", string(msg.Key), "error", err)
			}
		}
	}
}

func (p *Publisher) flush(ctx context.Context) {
	// Run is the only receiver, so len is stable against draining.
	var msgs []kafka.Message
	for len(p.queue) > 0 {
		msgs = append(msgs, <-p.queue)
	}
	if len(msgs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.flushTimeout)
	defer cancel()

	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		p.logger.WarnContext(ctx, "audit events lost on shutdown", "count", len(msgs), "error", err)
		return
	}
	p.logger.DebugContext(ctx, "flushed audit events", "count", len(msgs))
}

func (p *Publisher) publish(ctx context.Context, clientID modguard.ClientID, eventType string, payload map[string]any) {
	ev := NewEvent(eventType, p.source, p.now(), payload)
	value, err := json.Marshal(ev)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to marshal audit event", "eventType", eventType, "error", err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(clientID), 10)),
		Value: value,
	}
	select {
	case p.queue <- msg:
	default:
		p.logger.WarnContext(ctx, "audit queue full, event dropped", "eventType", eventType, "clientID", clientID)
	}
}

func verdictPayload(v modguard.Verdict) map[string]any {
	return map[string]any{
		"client_id":               v.ClientID,
		"username":                v.Username,
		"blacklisted_mod_ids":     v.BlacklistedModIDs,
		"has_local_mod_violation": v.HasLocalModViolation,
	}
}

func (p *Publisher) OnVerdict(ctx context.Context, v modguard.Verdict) {
	p.publish(ctx, v.ClientID, TypeVerdictIssued, verdictPayload(v))
}

func (p *Publisher) OnVerdictCleared(ctx context.Context, clientID modguard.ClientID) {
	p.publish(ctx, clientID, TypeVerdictCleared, map[string]any{"client_id": clientID})
}

func (p *Publisher) OnEnforce(ctx context.Context, v modguard.Verdict) {
	p.publish(ctx, v.ClientID, TypePlayerEnforced, verdictPayload(v))
}

func (p *Publisher) OnKick(ctx context.Context, clientID modguard.ClientID, err error) {
	payload := map[string]any{
		"client_id": clientID,
		"ok":        err == nil,
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	p.publish(ctx, clientID, TypePlayerKicked, payload)
}

