package http_test

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedlife/internal/embeddings"
	httpserver "github.com/fyrsmithlabs/embedlife/internal/http"
	"github.com/fyrsmithlabs/embedlife/internal/storemanager"
	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

// ExampleServer demonstrates how to create and start the HTTP server.
func ExampleServer() {
	store, err := vectorstore.NewMemoryStore(vectorstore.MemoryConfig{}, nil)
	if err != nil {
		panic(err)
	}
	defer store.Close()

	logger := zap.NewNop()
	manager, err := storemanager.New(nil, store, embeddings.NewStaticProvider(64), nil, logger)
	if err != nil {
		panic(err)
	}

	server, err := httpserver.NewServer(manager, logger, &httpserver.Config{Host: "localhost", Port: 18085})
	if err != nil {
		panic(err)
	}

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}()
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	fmt.Println("Server started and stopped successfully")
	// Output: Server started and stopped successfully
}
