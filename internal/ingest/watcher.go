// Package ingest indexes files dropped into an inbox directory.
//
// Every regular file with a watched extension becomes one document of the
// configured tenant. The document id is derived from the tenant and the
// file name, so rewriting a file updates its document and removing it
// deletes the document. Only the top level of the directory is watched.
// Markdown and HTML files are indexed as their visible text.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedlife/internal/indexer"
	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

const (
	// MaxFileSize is the largest file the watcher will index.
	MaxFileSize = 1 << 20

	// MetadataChecksum holds the sha256 of the extracted text, used to
	// skip rewrites that change nothing.
	MetadataChecksum = "content_sha256"
)

var (
	// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
	ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("watcher already started")
)

// Manager is the subset of the store manager the watcher drives.
type Manager interface {
	GetDocument(ctx context.Context, tenantID, id string) (*vectorstore.Document, error)
	IndexContent(ctx context.Context, content, title string, opts indexer.Options) (*indexer.Result, error)
	UpdateDocument(ctx context.Context, id, content, title string, opts indexer.Options) (*indexer.Result, error)
	DeleteDocument(ctx context.Context, id string) error
}

// Config configures a Watcher.
type Config struct {
	Dir         string
	TenantID    string
	ContentType vectorstore.ContentType
	// Extensions lists the file suffixes to index, e.g. ".md". Empty
	// accepts every file.
	Extensions []string
	// Debounce is how long a file must stay unchanged before it is
	// indexed. Default: 500ms
	Debounce time.Duration
}

// Watcher indexes files of one directory as they change.
type Watcher struct {
	cfg     Config
	manager Manager
	logger  *zap.Logger
	fsw     *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	started bool
	stopped bool

	// syncMu serializes file syncs so one file is never indexed twice
	// concurrently.
	syncMu sync.Mutex

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher for cfg.Dir. The directory must exist.
func New(cfg Config, manager Manager, logger *zap.Logger) (*Watcher, error) {
	if manager == nil {
		return nil, fmt.Errorf("manager is required")
	}
	if err := vectorstore.ValidateTenantID(cfg.TenantID); err != nil {
		return nil, err
	}
	if cfg.ContentType == "" {
		cfg.ContentType = vectorstore.ContentTypeContent
	}
	if _, err := vectorstore.ParseContentType(string(cfg.ContentType)); err != nil {
		return nil, err
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve inbox path: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("inbox directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("inbox %s is not a directory", dir)
	}
	cfg.Dir = dir
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	return &Watcher{
		cfg:     cfg,
		manager: manager,
		logger:  logger,
		fsw:     fsw,
		pending: make(map[string]*time.Timer),
		stop:    make(chan struct{}),
	}, nil
}

// DocumentID returns the id a file of the inbox is indexed under.
func DocumentID(tenantID, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("embedlife-inbox:"+tenantID+"/"+name)).String()
}

// Start indexes the files already present, then watches for changes
// until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.started = true
	w.mu.Unlock()

	if err := w.fsw.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.cfg.Dir, err)
	}

	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", w.cfg.Dir, err)
	}
	for _, e := range entries {
		if e.Type().IsRegular() && w.accepts(e.Name()) {
			w.schedule(ctx, filepath.Join(w.cfg.Dir, e.Name()))
		}
	}

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info("inbox watcher started",
		zap.String("dir", w.cfg.Dir),
		zap.String("tenant_id", w.cfg.TenantID),
		zap.Int("existing_files", len(entries)),
	)
	return nil
}

// Stop ends watching and waits for in-flight indexing to finish. Pending
// debounced files are dropped.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()

	close(w.stop)
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Dir(ev.Name) != w.cfg.Dir || !w.accepts(filepath.Base(ev.Name)) {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				w.schedule(ctx, ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("inbox watcher error", zap.Error(err))
		}
	}
}

// accepts reports whether name has a watched extension. Hidden and
// editor temporary files are skipped.
func (w *Watcher) accepts(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return false
	}
	if len(w.cfg.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range w.cfg.Extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// schedule (re)starts the debounce timer of path. The file's current
// state is read when the timer fires.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.pending[path]; ok {
		if t.Stop() {
			w.wg.Done()
		}
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.cfg.Debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.sync(ctx, path)
	})
	w.pending[path] = t
}

// sync brings the document of path in line with the file.
func (w *Watcher) sync(ctx context.Context, path string) {
	w.syncMu.Lock()
	defer w.syncMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	name := filepath.Base(path)
	id := DocumentID(w.cfg.TenantID, name)
	log := w.logger.With(zap.String("file", name), zap.String("document_id", id))

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		w.remove(ctx, id, log)
		return
	case err != nil:
		log.Warn("stat inbox file failed", zap.Error(err))
		return
	case !info.Mode().IsRegular():
		return
	case info.Size() > MaxFileSize:
		log.Warn("inbox file too large, skipped", zap.Int64("size", info.Size()))
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("reading inbox file failed", zap.Error(err))
		return
	}
	content, title, err := extract(name, data)
	if err != nil {
		log.Warn("extracting inbox file failed", zap.Error(err))
		return
	}
	if strings.TrimSpace(content) == "" {
		log.Debug("empty inbox file skipped")
		return
	}
	if title == "" {
		title = strings.TrimSuffix(name, filepath.Ext(name))
	}
	sum := sha256.Sum256([]byte(content))
	digest := hex.EncodeToString(sum[:])

	opts := indexer.Options{
		TenantID:    w.cfg.TenantID,
		ContentType: w.cfg.ContentType,
		SourceID:    name,
		SourceURL:   "file://" + filepath.ToSlash(path),
		Metadata: vectorstore.Metadata{
			"file_name":      name,
			"file_size":      info.Size(),
			MetadataChecksum: digest,
		},
	}

	var res *indexer.Result
	existing, err := w.manager.GetDocument(ctx, w.cfg.TenantID, id)
	switch {
	case err == nil:
		if existing.Metadata.String(MetadataChecksum) == digest && existing.Title == title {
			return
		}
		res, err = w.manager.UpdateDocument(ctx, id, content, title, opts)
	case errors.Is(err, vectorstore.ErrNotFound):
		opts.DocumentID = id
		res, err = w.manager.IndexContent(ctx, content, title, opts)
	}
	if err != nil {
		log.Warn("indexing inbox file failed", zap.Error(err))
		return
	}
	if !res.Success {
		log.Warn("indexing inbox file failed", zap.Strings("errors", res.Errors))
		return
	}
	log.Info("inbox file indexed", zap.Int("chunks", res.TotalChunks))
}

func (w *Watcher) remove(ctx context.Context, id string, log *zap.Logger) {
	if _, err := w.manager.GetDocument(ctx, w.cfg.TenantID, id); err != nil {
		return
	}
	if err := w.manager.DeleteDocument(ctx, id); err != nil {
		log.Warn("deleting document of removed inbox file failed", zap.Error(err))
		return
	}
	log.Info("document of removed inbox file deleted")
}
