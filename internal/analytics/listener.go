package analytics

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/cartrecovery/internal/carts"
	"github.com/angelmondragon/cartrecovery/pkg/logger"
)

type rowWriter interface {
	Insert(ctx context.Context, row CartEventRow) error
	Flush(ctx context.Context) error
}

type ListenerParams struct {
	Writer   rowWriter
	Currency string
	Logger   *logger.Logger
}

// Listener streams every cart event to BigQuery.
type Listener struct {
	writer   rowWriter
	currency string
	logg     *logger.Logger
}

func NewListener(params ListenerParams) (*Listener, error) {
	if params.Writer == nil {
		return nil, errors.New("analytics writer required")
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		return nil, errors.New("currency required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Listener{writer: params.Writer, currency: currency, logg: logg}, nil
}

func (l *Listener) Name() string {
	return "bigquery"
}

func (l *Listener) Handle(ctx context.Context, evt carts.Event) error {
	row, err := RowFromEvent(evt, l.currency)
	if err != nil {
		return err
	}
	if err := l.writer.Insert(ctx, row); err != nil {
		return err
	}
	l.logg.Debug(l.logg.WithFields(ctx, map[string]any{
		"event_id":   row.EventID,
		"event_type": row.EventType,
	}), "cart event queued for bigquery")
	return nil
}

// Close flushes rows still buffered by the writer.
func (l *Listener) Close(ctx context.Context) error {
	return l.writer.Flush(ctx)
}
