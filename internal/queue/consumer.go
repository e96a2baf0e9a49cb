package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iliyamo/journal-portal/internal/mailer"
)

// errMalformed marks a message that can never be processed.
var errMalformed = errors.New("malformed event")

// Consumer reads JournalEvents from the events queue and mails them.
// Deliveries are at least once; the Deduper turns that into at most one
// email per event id.
type Consumer struct {
	URL         string
	Queue       string
	FrontendURL string
	Sender      mailer.Sender
	Dedupe      Deduper
	Log         zerolog.Logger
}

// Run keeps a consumer attached to the broker until ctx is cancelled,
// reconnecting with exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn().Err(err).Dur("retry_in", backoff).Msg("dial broker failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warn().Err(err).Msg("consume loop ended; reconnecting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(20, 0, false); err != nil {
		c.Log.Warn().Err(err).Msg("set qos failed")
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.Log.Info().Str("queue", c.Queue).Msg("consumer attached")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			err := c.Process(ctx, d.Body)
			switch {
			case err == nil:
				_ = d.Ack(false)
			case errors.Is(err, errMalformed):
				c.Log.Error().Err(err).Str("message_id", d.MessageId).Msg("dropping event")
				_ = d.Nack(false, false)
			default:
				c.Log.Warn().Err(err).Str("message_id", d.MessageId).Bool("redelivered", d.Redelivered).Msg("event failed")
				_ = d.Nack(false, !d.Redelivered)
			}
		}
	}
}

// Process handles one message body. Events already claimed by an earlier
// delivery are acknowledged without sending again.
func (c *Consumer) Process(ctx context.Context, body []byte) error {
	var ev JournalEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if ev.EventID == "" || ev.RecipientEmail == "" {
		return fmt.Errorf("%w: missing event id or recipient", errMalformed)
	}

	first, err := c.Dedupe.Claim(ctx, ev.EventID)
	if err != nil {
		return fmt.Errorf("claim event: %w", err)
	}
	if !first {
		c.Log.Debug().Str("event_id", ev.EventID).Msg("duplicate event skipped")
		return nil
	}

	link := ""
	if ev.Path != "" {
		link = strings.TrimRight(c.FrontendURL, "/") + ev.Path
	}
	greeting := "Hello,"
	if ev.RecipientName != "" {
		greeting = "Hello " + ev.RecipientName + ","
	}
	html := mailer.Build(ev.Subject, []string{greeting, ev.Message}, "Open in portal", link)
	if err := c.Sender.Send(ctx, []string{ev.RecipientEmail}, ev.Subject, html); err != nil {
		if rerr := c.Dedupe.Release(ctx, ev.EventID); rerr != nil {
			c.Log.Error().Err(rerr).Str("event_id", ev.EventID).Msg("release claim failed")
		}
		return fmt.Errorf("send mail: %w", err)
	}
	c.Log.Info().Str("event_id", ev.EventID).Str("type", string(ev.Type)).Uint64("recipient_id", ev.RecipientID).Msg("notification mailed")
	return nil
}
