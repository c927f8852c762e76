// Package notify publishes ledger change events so other services can
// refresh their views of a group.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Change kinds.
const (
	KindExpenseAdded       = "expense.added"
	KindExpenseDeleted     = "expense.deleted"
	KindSettlementRecorded = "settlement.recorded"
	KindSettlementReversed = "settlement.reversed"
	KindAllocationReversed = "allocation.reversed"
)

// Change describes one committed ledger mutation.
type Change struct {
	Kind     string    `json:"kind"`
	GroupID  string    `json:"group_id"`
	ActorID  string    `json:"actor_id,omitempty"`
	EventID  string    `json:"event_id,omitempty"`
	SplitIDs []string  `json:"split_ids,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher delivers change events. Publishing happens after commit, so a
// failure never undoes a mutation.
type Publisher interface {
	Publish(ctx context.Context, c Change) error
	Close() error
}

// Nop discards every change.
type Nop struct{}

func (Nop) Publish(context.Context, Change) error { return nil }
func (Nop) Close() error                          { return nil }

// NATSPublisher publishes changes as JSON on core NATS subjects of the
// form <prefix>.<group>.<kind>.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATS connects to url.
func NewNATS(url, prefix string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("settleup"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn, prefix: prefix}, nil
}

// Subject returns the subject a change is published on.
func (p *NATSPublisher) Subject(c Change) string {
	return Subject(p.prefix, c)
}

// Subject builds <prefix>.<group>.<kind>. The group ID becomes exactly one
// subject token: bytes other than ASCII letters, digits, '-' and '_' are
// written as %XX, so IDs holding '.', '*', '>' or whitespace cannot add
// tokens or wildcards.
func Subject(prefix string, c Change) string {
	return prefix + "." + subjectToken(c.GroupID) + "." + c.Kind
}

func subjectToken(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; {
		case 'a' <= ch && ch <= 'z', 'A' <= ch && ch <= 'Z', '0' <= ch && ch <= '9', ch == '-', ch == '_':
			b.WriteByte(ch)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[ch>>4])
			b.WriteByte(hex[ch&0x0f])
		}
	}
	return b.String()
}

func (p *NATSPublisher) Publish(ctx context.Context, c Change) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	if c.GroupID == "" {
		return errors.New("change has no group")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	return p.conn.Publish(p.Subject(c), data)
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// Logged wraps a Publisher so failures are logged rather than returned.
type Logged struct {
	Publisher
	Logger *slog.Logger
}

func (l Logged) Publish(ctx context.Context, c Change) error {
	if err := l.Publisher.Publish(ctx, c); err != nil {
		logger := l.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("Failed to publish change",
			"kind", c.Kind,
			"group_id", c.GroupID,
			"error", err,
		)
	}
	return nil
}
