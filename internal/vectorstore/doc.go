// Package vectorstore defines the embedlife data model and the storage
// contract the engine runs on, with two backends.
//
// MemoryStore keeps every record in process memory. Nearest-neighbor
// queries go through chromem-go collections holding document and centroid
// vectors, and hybrid search takes its lexical score from an in-memory
// bleve index. It is the default backend and the one used by tests.
//
// QdrantStore persists documents, clusters, memberships and side records in
// two Qdrant collections over gRPC.
//
// # Usage
//
//	store, err := vectorstore.NewStore(vectorstore.Config{Provider: "memory"}, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	err = store.PutDocument(ctx, &vectorstore.Document{
//	    ID:          "doc-1",
//	    TenantID:    "acme",
//	    ContentType: vectorstore.ContentTypeFAQ,
//	    Content:     "Returns are accepted within 30 days.",
//	    Embedding:   vec,
//	})
//
//	hits, err := store.SearchVectors(ctx, vectorstore.VectorQuery{
//	    Embedding: queryVec,
//	    TenantID:  "acme",
//	    Threshold: 0.7,
//	    Count:     10,
//	})
//
// # Tenancy
//
// Every document and cluster carries a TenantID and every query names one.
// The HTTP layer resolves the tenant from the X-Tenant-ID header and stores
// it in the request context with ContextWithTenant; ResolveTenantID reads it
// back when an operation is not given one explicitly.
package vectorstore

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("github.com/fyrsmithlabs/embedlife/internal/vectorstore")
