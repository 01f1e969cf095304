package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix roots every published subject.
const DefaultSubjectPrefix = "embedlife.events"

// NATSPublisher is a Listener that publishes events as JSON to
//
//	{prefix}.{tenant_id}.{type}
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher creates a publisher. An empty prefix uses
// DefaultSubjectPrefix.
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: nc, prefix: prefix}
}

// Subject returns the subject ev is published to. Dots in the tenant id
// would split the token, so they become underscores.
func (p *NATSPublisher) Subject(ev Event) string {
	tenant := strings.ReplaceAll(ev.TenantID, ".", "_")
	if tenant == "" {
		tenant = "_"
	}
	return fmt.Sprintf("%s.%s.%s", p.prefix, tenant, ev.Type)
}

// HandleEvent publishes ev.
func (p *NATSPublisher) HandleEvent(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(ev), data); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Type, err)
	}
	return nil
}
