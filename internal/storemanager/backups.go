package storemanager

import (
	"sync"
	"time"

	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

// DefaultMaxBackups bounds the versions kept per document.
const DefaultMaxBackups = 10

// Backup records a document version replaced by an update. Only metadata
// is kept; the previous content is not recoverable from it.
type Backup struct {
	DocumentID    string               `json:"document_id"`
	Version       int                  `json:"version"`
	Title         string               `json:"title,omitempty"`
	Summary       string               `json:"summary,omitempty"`
	ContentLength int                  `json:"content_length"`
	ChunkCount    int                  `json:"chunk_count"`
	Metadata      vectorstore.Metadata `json:"metadata,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at"`
	BackedUpAt    time.Time            `json:"backed_up_at"`
}

// backupLog keeps the most recent backups per document, oldest first.
type backupLog struct {
	mu      sync.Mutex
	limit   int
	entries map[string][]Backup
	counts  map[string]int
}

func newBackupLog(limit int) *backupLog {
	if limit <= 0 {
		limit = DefaultMaxBackups
	}
	return &backupLog{limit: limit, entries: map[string][]Backup{}, counts: map[string]int{}}
}

func (l *backupLog) record(doc *vectorstore.Document, at time.Time) Backup {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.counts[doc.ID]++
	b := Backup{
		DocumentID:    doc.ID,
		Version:       l.counts[doc.ID],
		Title:         doc.Title,
		Summary:       doc.Summary,
		ContentLength: len(doc.Content),
		ChunkCount:    doc.ChunkCount,
		Metadata:      doc.Metadata.Clone(),
		UpdatedAt:     doc.UpdatedAt,
		BackedUpAt:    at,
	}
	entries := append(l.entries[doc.ID], b)
	if len(entries) > l.limit {
		entries = entries[len(entries)-l.limit:]
	}
	l.entries[doc.ID] = entries
	return b
}

func (l *backupLog) list(id string) []Backup {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Backup(nil), l.entries[id]...)
}
