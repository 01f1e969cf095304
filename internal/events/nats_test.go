package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	server, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)

	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

func TestNATSPublisherSubject(t *testing.T) {
	p := NewNATSPublisher(nil, "")
	assert.Equal(t, "embedlife.events.acme.created", p.Subject(Event{TenantID: "acme", Type: TypeCreated}))
	assert.Equal(t, "embedlife.events.shop_eu.deleted", p.Subject(Event{TenantID: "shop.eu", Type: TypeDeleted}))
	assert.Equal(t, "embedlife.events._.updated", p.Subject(Event{Type: TypeUpdated}))

	custom := NewNATSPublisher(nil, "audit")
	assert.Equal(t, "audit.acme.clustered", custom.Subject(Event{TenantID: "acme", Type: TypeClustered}))
}

func TestNATSPublisherPublishes(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe("embedlife.events.acme.>", ch)
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	bus := NewBus(nil)
	bus.Subscribe(NewNATSPublisher(nc, ""))
	bus.Emit(context.Background(), Event{
		Type:        TypeCreated,
		DocumentID:  "doc-1",
		ContentType: vectorstore.ContentTypeProduct,
		TenantID:    "acme",
		Metadata:    map[string]any{"chunks": 3},
	})
	require.NoError(t, nc.Flush())

	select {
	case msg := <-ch:
		assert.Equal(t, "embedlife.events.acme.created", msg.Subject)
		var ev Event
		require.NoError(t, json.Unmarshal(msg.Data, &ev))
		assert.Equal(t, "doc-1", ev.DocumentID)
		assert.Equal(t, vectorstore.ContentTypeProduct, ev.ContentType)
		assert.False(t, ev.Timestamp.IsZero())
		assert.EqualValues(t, 3, ev.Metadata["chunks"])
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for created event")
	}
}
