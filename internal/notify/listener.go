package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/cartrecovery/internal/carts"
	"github.com/angelmondragon/cartrecovery/pkg/logger"
)

const (
	consumerName          = "pubsub-cart-events"
	defaultPublishTimeout = 15 * time.Second
)

type publisher interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string, orderingKey string) (string, error)
}

type deduper interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (release func(context.Context) error, fresh bool, err error)
}

type ListenerParams struct {
	Publisher      publisher
	Topic          string
	Currency       string
	Idempotency    deduper
	Logger         *logger.Logger
	PublishTimeout time.Duration
}

// PubSubListener publishes cart events for the email workflow. Messages are
// ordered per session and deduplicated by event id when Idempotency is set.
type PubSubListener struct {
	pub      publisher
	topic    string
	currency string
	dedupe   deduper
	logg     *logger.Logger
	timeout  time.Duration
}

func NewPubSubListener(params ListenerParams) (*PubSubListener, error) {
	if params.Publisher == nil {
		return nil, errors.New("publisher required")
	}
	topic := strings.TrimSpace(params.Topic)
	if topic == "" {
		return nil, errors.New("topic required")
	}
	currency := strings.TrimSpace(params.Currency)
	if currency == "" {
		return nil, errors.New("currency required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	timeout := params.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &PubSubListener{
		pub:      params.Publisher,
		topic:    topic,
		currency: currency,
		dedupe:   params.Idempotency,
		logg:     logg,
		timeout:  timeout,
	}, nil
}

func (l *PubSubListener) Name() string {
	return "pubsub"
}

func (l *PubSubListener) Handle(ctx context.Context, evt carts.Event) (err error) {
	ctx = l.logg.WithFields(ctx, map[string]any{
		"event_id":   evt.ID.String(),
		"event_type": evt.Type.String(),
		"topic":      l.topic,
	})

	if l.dedupe != nil {
		release, fresh, claimErr := l.dedupe.Claim(ctx, consumerName, evt.ID)
		if claimErr != nil {
			return fmt.Errorf("idempotency claim: %w", claimErr)
		}
		if !fresh {
			l.logg.Info(ctx, "cart event already published")
			return nil
		}
		defer func() {
			if err != nil {
				err = multierr.Append(err, release(context.WithoutCancel(ctx)))
			}
		}()
	}

	envelope, err := carts.EventEnvelope(evt, l.currency)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	attrs := map[string]string{
		"event_id":    envelope.EventID,
		"event_type":  envelope.EventType,
		"session_id":  evt.Session.ID.String(),
		"state":       evt.Session.State.String(),
		"occurred_at": envelope.OccurredAt.Format(time.RFC3339Nano),
	}

	publishCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	serverID, err := l.pub.Publish(publishCtx, l.topic, payload, attrs, evt.Session.ID.String())
	if err != nil {
		return err
	}

	l.logg.Info(l.logg.WithField(ctx, "message_id", serverID), "cart event published")
	return nil
}
