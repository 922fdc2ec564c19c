package backend

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"invoicer/internal/ports"
	"invoicer/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the document store and the optional pieces that
// only some backends provide.
type BackendResult struct {
	Store ports.DocumentStore
	// Ledger is set for the sqlite backend, which tracks which document
	// versions have been mirrored to the ledger spreadsheet.
	Ledger *storage.SQLiteRepository
	// Publisher is set when an AMQP URL is configured.
	Publisher ports.EventPublisher
	// Shared is set when a separate worker process can open the same data.
	// Otherwise the server runs the background workers itself.
	Shared bool
	// Collector exposes backend specific metrics, if any.
	Collector prometheus.Collector
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath  string
	BoltDBPath    string
	DataDirectory string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	BoltBackend   BackendType = "bolt"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// Shared reports whether more than one process can use the backend at once.
// bolt holds an exclusive file lock and memory lives in a single process.
func (bt BackendType) Shared() bool {
	return bt == SQLiteBackend
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, BoltBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
