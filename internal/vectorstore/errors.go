package vectorstore

import "errors"

var (
	// ErrNotFound is returned when a document, cluster, side record or
	// membership does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates an empty document batch.
	ErrEmptyDocuments = errors.New("empty documents list")

	// ErrConnectionFailed indicates the backend could not be reached.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrDimensionMismatch indicates an embedding of the wrong length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
