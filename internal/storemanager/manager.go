package storemanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedlife/internal/cluster"
	"github.com/fyrsmithlabs/embedlife/internal/embeddings"
	"github.com/fyrsmithlabs/embedlife/internal/events"
	"github.com/fyrsmithlabs/embedlife/internal/indexer"
	"github.com/fyrsmithlabs/embedlife/internal/redact"
	"github.com/fyrsmithlabs/embedlife/internal/search"
	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

const instrumentationName = "github.com/fyrsmithlabs/embedlife/internal/storemanager"

// MetadataRedactedValues holds the number of values removed by redaction.
const MetadataRedactedValues = "redacted_values"

// ErrConfiguration is returned when a required dependency is missing.
var ErrConfiguration = errors.New("store manager configuration error")

// Config configures the manager and the components it builds.
type Config struct {
	// EnableClustering assigns every indexed document to a cluster.
	EnableClustering bool
	// EnableCompression runs the compression step after indexing.
	EnableCompression bool
	// MaxBackups bounds the version backups kept per document.
	MaxBackups int
	// Redaction scrubs credentials and card numbers from content and
	// titles before indexing. Nil disables it.
	Redaction *redact.Config

	Indexer *indexer.Config
	Cluster *cluster.Config
	Search  *search.Config
}

// DefaultConfig enables clustering with default component settings.
func DefaultConfig() *Config {
	return &Config{
		EnableClustering: true,
		MaxBackups:       DefaultMaxBackups,
		Indexer:          indexer.DefaultConfig(),
		Cluster:          cluster.DefaultConfig(),
		Search:           search.DefaultConfig(),
	}
}

// Manager owns the document lifecycle over one store.
type Manager struct {
	config   *Config
	store    vectorstore.Store
	embedder embeddings.Provider
	indexer  *indexer.Indexer
	clusters *cluster.Manager
	search   *search.Engine
	bus      *events.Bus
	redactor *redact.Redactor

	maint   *maintenance
	backups *backupLog

	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time

	lastStats *Statistics
}

// New builds a manager. bus may be nil, in which case events go to a bus
// with no listeners.
func New(cfg *Config, store vectorstore.Store, embedder embeddings.Provider, bus *events.Bus, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrConfiguration)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedding provider is required", ErrConfiguration)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if bus == nil {
		bus = events.NewBus(logger)
	}

	clusters, err := cluster.NewManager(cfg.Cluster, store, logger.Named("cluster"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	var assigner indexer.ClusterAssigner
	if cfg.EnableClustering {
		assigner = clusters
	}
	ix, err := indexer.New(cfg.Indexer, store, embedder, assigner, logger.Named("indexer"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	engine, err := search.New(cfg.Search, store, embedder, logger.Named("search"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	var redactor *redact.Redactor
	if cfg.Redaction != nil {
		if redactor, err = redact.New(*cfg.Redaction); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
	}

	return &Manager{
		config:   cfg,
		store:    store,
		embedder: embedder,
		indexer:  ix,
		clusters: clusters,
		search:   engine,
		bus:      bus,
		redactor: redactor,
		maint:    newMaintenance(time.Now),
		backups:  newBackupLog(cfg.MaxBackups),
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		now:      time.Now,
	}, nil
}

// Search returns the search engine.
func (m *Manager) Search() *search.Engine { return m.search }

// Clusters returns the cluster manager.
func (m *Manager) Clusters() *cluster.Manager { return m.clusters }

// Events returns the event bus.
func (m *Manager) Events() *events.Bus { return m.bus }

// MaintenanceStatus returns a snapshot of the maintenance operations.
func (m *Manager) MaintenanceStatus() MaintenanceStatus {
	return m.maint.snapshot()
}

// Backups returns the recorded versions of a document, oldest first.
func (m *Manager) Backups(documentID string) []Backup {
	return m.backups.list(documentID)
}

// GetDocument returns a parent document owned by tenantID. Chunks and
// documents of other tenants are reported as vectorstore.ErrNotFound.
func (m *Manager) GetDocument(ctx context.Context, tenantID, id string) (*vectorstore.Document, error) {
	tenantID, err := vectorstore.ResolveTenantID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	doc, err := m.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.TenantID != tenantID || doc.IsChunk() {
		return nil, fmt.Errorf("document %s: %w", id, vectorstore.ErrNotFound)
	}
	return doc, nil
}

// IndexContent indexes one document and emits created, then clustered and
// compressed when those steps ran.
func (m *Manager) IndexContent(ctx context.Context, content, title string, opts indexer.Options) (*indexer.Result, error) {
	ctx, span := m.tracer.Start(ctx, "storemanager.IndexContent")
	defer span.End()

	opts.EnableClustering = m.config.EnableClustering
	content, title, opts.Metadata = m.redact(content, title, opts.Metadata)
	res, err := m.indexer.IndexDocument(ctx, content, title, opts)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("document_id", res.DocumentID), attribute.Bool("success", res.Success))
	m.afterIndex(ctx, res, opts)
	return res, nil
}

// BatchIndexContent indexes items in throttled sub-batches and emits the
// same events as IndexContent for every successful item.
func (m *Manager) BatchIndexContent(ctx context.Context, items []indexer.BatchItem) *indexer.BatchResult {
	ctx, span := m.tracer.Start(ctx, "storemanager.BatchIndexContent")
	defer span.End()

	for i := range items {
		items[i].Options.EnableClustering = m.config.EnableClustering
		items[i].Content, items[i].Title, items[i].Options.Metadata = m.redact(items[i].Content, items[i].Title, items[i].Options.Metadata)
	}
	out := m.indexer.IndexDocuments(ctx, items)
	for i, res := range out.Results {
		if res != nil {
			m.afterIndex(ctx, res, items[i].Options)
		}
	}
	return out
}

// redact scrubs content and title. When anything was removed it returns a
// copy of md carrying the number of redacted values; md itself is never
// modified.
func (m *Manager) redact(content, title string, md vectorstore.Metadata) (string, string, vectorstore.Metadata) {
	if m.redactor == nil {
		return content, title, md
	}
	body := m.redactor.Redact(content)
	head := m.redactor.Redact(title)
	total := body.Total() + head.Total()
	if total == 0 {
		return content, title, md
	}
	m.logger.Info("redacted sensitive values before indexing",
		zap.Int("count", total),
		zap.Strings("rules", append(body.RuleIDs(), head.RuleIDs()...)))

	out := md.Clone()
	if out == nil {
		out = vectorstore.Metadata{}
	}
	out[MetadataRedactedValues] = total
	return body.Content, head.Content, out
}

func (m *Manager) afterIndex(ctx context.Context, res *indexer.Result, opts indexer.Options) {
	if !res.Success {
		return
	}
	m.emit(ctx, events.TypeCreated, res.DocumentID, opts, map[string]any{
		"chunks": res.TotalChunks,
		"tokens": res.TokenCount,
	})
	if res.ClusterID != "" {
		m.emit(ctx, events.TypeClustered, res.DocumentID, opts, map[string]any{"cluster_id": res.ClusterID})
	}
	if m.config.EnableCompression {
		m.compress(ctx, res.DocumentID, opts)
	}
}

// compress is a placeholder step: no compression backend exists yet, so it
// only tracks state and emits the event.
func (m *Manager) compress(ctx context.Context, documentID string, opts indexer.Options) {
	if err := m.maint.begin(OpCompression); err != nil {
		m.logger.Debug("compression already running, skipping", zap.String("document_id", documentID))
		return
	}
	m.maint.end(OpCompression, nil)
	m.emit(ctx, events.TypeCompressed, documentID, opts, map[string]any{"ratio": 1.0})
}

// UpdateDocument records a backup of the current version, reindexes the
// document under the same id and reassigns its cluster. The stored version
// is kept when embedding the new one fails. Returns vectorstore.ErrNotFound
// for unknown ids.
func (m *Manager) UpdateDocument(ctx context.Context, id, content, title string, opts indexer.Options) (*indexer.Result, error) {
	ctx, span := m.tracer.Start(ctx, "storemanager.UpdateDocument")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", id))

	existing, err := m.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.IsChunk() {
		return nil, fmt.Errorf("document %s is a chunk of %s: %w", id, existing.ParentID, vectorstore.ErrNotFound)
	}
	opts.EnableClustering = m.config.EnableClustering
	md := opts.Metadata
	if md == nil {
		md = existing.Metadata
	}
	if c, t, redacted := m.redact(content, title, md); c != content || t != title {
		content, title, opts.Metadata = c, t, redacted
	}
	res, err := m.indexer.ReindexDocument(ctx, id, content, title, opts)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return res, nil
	}
	backup := m.backups.record(existing, m.now())

	if opts.TenantID == "" {
		opts.TenantID = existing.TenantID
	}
	if opts.ContentType == "" {
		opts.ContentType = existing.ContentType
	}
	m.emit(ctx, events.TypeUpdated, id, opts, map[string]any{
		"version":    backup.Version + 1,
		"chunks":     res.TotalChunks,
		"cluster_id": res.ClusterID,
	})
	return res, nil
}

// DeleteDocument removes a document with its chunks, side record and
// membership, then refreshes the cluster it left, deleting it when empty.
func (m *Manager) DeleteDocument(ctx context.Context, id string) error {
	ctx, span := m.tracer.Start(ctx, "storemanager.DeleteDocument")
	defer span.End()
	span.SetAttributes(attribute.String("document_id", id))

	membership, err := m.store.GetMembership(ctx, id)
	if err != nil && !errors.Is(err, vectorstore.ErrNotFound) {
		m.logger.Warn("reading membership before delete failed", zap.String("document_id", id), zap.Error(err))
	}

	doc, err := m.indexer.DeleteDocumentAndChunks(ctx, id)
	if err != nil {
		return err
	}

	if membership != nil {
		if _, err := m.clusters.RefreshCluster(ctx, membership.ClusterID); err != nil {
			m.logger.Warn("refreshing cluster after delete failed",
				zap.String("cluster_id", membership.ClusterID), zap.Error(err))
		}
	}

	m.emit(ctx, events.TypeDeleted, id, indexer.Options{TenantID: doc.TenantID, ContentType: doc.ContentType}, nil)
	return nil
}

func (m *Manager) emit(ctx context.Context, t events.Type, documentID string, opts indexer.Options, md map[string]any) {
	m.bus.Emit(ctx, events.Event{
		Type:        t,
		DocumentID:  documentID,
		ContentType: opts.ContentType,
		TenantID:    opts.TenantID,
		Timestamp:   m.now(),
		Metadata:    md,
	})
}
