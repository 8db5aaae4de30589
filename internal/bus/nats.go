package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Subjects are laid out as kestrel.<tenant>.<topic without its kestrel.
// prefix>, e.g. kestrel.bank-001.simulation.scored. The tenant is always
// the second token, so a global subscription is kestrel.*.<topic>.
const subjectRoot = "kestrel"

// NATSBus implements EventBus on NATS for the Pro tier. Envelopes are
// JSON-encoded domain.Message values; on delivery the tenant and topic are
// taken from the subject, never from the envelope.
type NATSBus struct {
	mu   sync.Mutex
	conn *nats.Conn
	subs map[*natsSubscription]struct{}
}

type natsSubscription struct {
	bus   *NATSBus
	topic string
	sub   *nats.Subscription
}

// NewNATSBus connects to cfg.NATSUrl, retrying up to NATSMaxReconnects times.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	cfg = natsDefaults(cfg)

	var (
		conn *nats.Conn
		err  error
	)
	for attempt := 1; attempt <= cfg.NATSMaxReconnects; attempt++ {
		conn, err = nats.Connect(cfg.NATSUrl, natsOptions(cfg)...)
		if err == nil {
			break
		}
		slog.Warn("NATS connection attempt failed",
			"attempt", attempt,
			"max_attempts", cfg.NATSMaxReconnects,
			"error", err,
		)
		if attempt < cfg.NATSMaxReconnects {
			time.Sleep(time.Duration(cfg.NATSReconnectWait) * time.Second)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", cfg.NATSMaxReconnects, err)
	}

	slog.Info("NATS connected", "url", conn.ConnectedUrl())

	return &NATSBus{
		conn: conn,
		subs: make(map[*natsSubscription]struct{}),
	}, nil
}

func natsDefaults(cfg domain.EventBusConfig) domain.EventBusConfig {
	if cfg.NATSUrl == "" {
		cfg.NATSUrl = nats.DefaultURL
	}
	if cfg.NATSMaxReconnects <= 0 {
		cfg.NATSMaxReconnects = 10
	}
	if cfg.NATSReconnectWait <= 0 {
		cfg.NATSReconnectWait = 5
	}
	return cfg
}

func natsOptions(cfg domain.EventBusConfig) []nats.Option {
	opts := []nats.Option{
		nats.Name("kestrel"),
		nats.MaxReconnects(cfg.NATSMaxReconnects),
		nats.ReconnectWait(time.Duration(cfg.NATSReconnectWait) * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error("NATS async error", "subject", subject, "error", err)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}
	return opts
}

// subjectFor maps a tenant and topic onto a subject. AllTenants becomes the
// single-token wildcard. Tenants that would split or widen the subject are
// rejected.
func subjectFor(tenantID, topic string) (string, error) {
	token := tenantID
	if tenantID == domain.AllTenants {
		token = "*"
	} else if tenantID == "" || strings.ContainsAny(tenantID, ".*> \t\r\n") {
		return "", fmt.Errorf("tenant %q cannot be used in a NATS subject", tenantID)
	}

	topic = strings.TrimPrefix(topic, subjectRoot+".")
	if topic == "" || strings.ContainsAny(topic, "*> \t\r\n") {
		return "", fmt.Errorf("topic %q cannot be used in a NATS subject", topic)
	}
	return subjectRoot + "." + token + "." + topic, nil
}

// parseSubject is the inverse of subjectFor for concrete (non-wildcard) subjects.
func parseSubject(subject string) (tenantID, topic string, err error) {
	parts := strings.SplitN(subject, ".", 3)
	if len(parts) != 3 || parts[0] != subjectRoot || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("unexpected subject %q", subject)
	}
	return parts[1], subjectRoot + "." + parts[2], nil
}

// decodeDelivery unpacks an envelope received on subject. The subject's
// tenant and topic replace whatever the envelope claims.
func decodeDelivery(subject string, data []byte) (*domain.Message, error) {
	tenantID, topic, err := parseSubject(subject)
	if err != nil {
		return nil, err
	}

	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if msg.TenantID != "" && msg.TenantID != tenantID {
		slog.Warn("envelope tenant differs from subject",
			"subject", subject,
			"envelope_tenant", msg.TenantID,
			"message_id", msg.ID,
		)
	}
	msg.TenantID = tenantID
	msg.Topic = topic
	if msg.Metadata == nil {
		msg.Metadata = make(map[string]string)
	}
	return &msg, nil
}

// dispatch adapts a MessageHandler to raw NATS deliveries.
func dispatch(ctx context.Context, handler domain.MessageHandler) nats.MsgHandler {
	return func(m *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		msg, err := decodeDelivery(m.Subject, m.Data)
		if err != nil {
			slog.Error("dropping NATS message", "subject", m.Subject, "error", err)
			return
		}
		if err := handler(ctx, msg); err != nil {
			slog.Error("handler error",
				"tenant_id", msg.TenantID,
				"topic", msg.Topic,
				"message_id", msg.ID,
				"error", err,
			)
		}
	}
}

func (b *NATSBus) publish(msg *domain.Message) error {
	subject, err := subjectFor(msg.TenantID, msg.Topic)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Publish sends payload to the tenant's subject for topic.
func (b *NATSBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if err := validateTenant(tenantID, false); err != nil {
		return err
	}
	return b.publish(newMessage(tenantID, topic, payload))
}

// Subscribe registers handler for topic. With AllTenants it receives every
// tenant's messages, each tagged with the tenant from its subject.
func (b *NATSBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if err := validateTenant(tenantID, true); err != nil {
		return nil, err
	}
	subject, err := subjectFor(tenantID, topic)
	if err != nil {
		return nil, err
	}

	ns, err := b.conn.Subscribe(subject, dispatch(ctx, handler))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	sub := &natsSubscription{bus: b, topic: topic, sub: ns}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub, nil
}

// Request publishes payload with a reply_to topic, like the channel bus, and
// waits for the first message on it.
func (b *NATSBus) Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error) {
	if err := validateTenant(tenantID, false); err != nil {
		return nil, err
	}

	replyTopic := topic + ".reply." + uuid.New().String()
	replyCh := make(chan []byte, 1)
	sub, err := b.Subscribe(ctx, tenantID, replyTopic, func(ctx context.Context, msg *domain.Message) error {
		select {
		case replyCh <- msg.Payload:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	msg := newMessage(tenantID, topic, payload)
	msg.Metadata[domain.MetadataReplyTo] = replyTopic
	if err := b.publish(msg); err != nil {
		return nil, err
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(30 * time.Second):
		return nil, fmt.Errorf("request timeout")
	}
}

// Ping checks NATS connectivity.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS not connected")
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains subscriptions and closes the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	for sub := range b.subs {
		_ = sub.sub.Unsubscribe()
	}
	b.subs = make(map[*natsSubscription]struct{})
	b.mu.Unlock()

	b.conn.Close()
	return nil
}

// Unsubscribe removes the subscription.
func (s *natsSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	return s.sub.Unsubscribe()
}

// Topic returns the subscribed topic.
func (s *natsSubscription) Topic() string {
	return s.topic
}
