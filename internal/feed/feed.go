// Package feed consumes the platform's edit notification stream and pushes
// fresh revision identifiers into the admission queue.
package feed

import (
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"vandalwatch/internal/metrics"
	"vandalwatch/internal/models"
)

// Sink accepts freshly observed edits. The admission queue satisfies it.
type Sink interface {
	Offer(ref models.EditRef)
}

// Consumer subscribes to the recent-change subject on NATS and feeds the
// admission queue. Multiple service instances share the work through a
// queue group.
type Consumer struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	subject string
	sink    Sink
	retries int
}

// NewConsumer connects to NATS at url. retries is the metadata-lookup
// budget stamped on every admitted item.
func NewConsumer(url, subject string, sink Sink, retries int) (*Consumer, error) {
	conn, err := nats.Connect(url,
		nats.Name("vandalwatch-feed"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Consumer{
		conn:    conn,
		subject: subject,
		sink:    sink,
		retries: retries,
	}, nil
}

// Start begins consuming. Malformed notifications are counted and skipped;
// nothing on the feed is fatal.
func (c *Consumer) Start() error {
	sub, err := c.conn.QueueSubscribe(c.subject, "vandalwatch", func(msg *nats.Msg) {
		c.handle(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.subject, err)
	}
	c.sub = sub
	log.Printf("Feed consumer subscribed to %s", c.subject)
	return nil
}

func (c *Consumer) handle(data []byte) {
	var change models.RecentChange
	if err := json.Unmarshal(data, &change); err == nil && change.Revision.New != 0 {
		if change.Type != "" && change.Type != "edit" && change.Type != "new" {
			return
		}
		c.sink.Offer(models.EditRef{
			RevisionID:       change.Revision.New,
			PageID:           change.PageID,
			RetriesRemaining: c.retries,
		})
		metrics.EditsIngested.Inc()
		return
	}

	// Fall back to bare revision ids and diff-URL notifications.
	rid, err := ParseRevisionID(string(data))
	if err != nil {
		slog.Warn("unparseable notification", "error", err)
		metrics.FeedParseErrors.Inc()
		return
	}
	c.sink.Offer(models.EditRef{RevisionID: rid, RetriesRemaining: c.retries})
	metrics.EditsIngested.Inc()
}

// Close drains the subscription and closes the connection.
func (c *Consumer) Close() {
	if c.sub != nil {
		_ = c.sub.Drain()
	}
	c.conn.Close()
}
