// Package storage provides the persistence abstraction for wallet records.
//
// Records are addressed by (namespace, recordType, recordID). The wallet core
// keeps one namespace per wallet and treats every read-modify-write of a
// record as a Batch so concurrent handlers cannot lose updates.
package storage

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrCASFailed is returned when a compare-and-swap version check fails.
	ErrCASFailed = errors.New("CAS version mismatch")
)

// BatchTx provides reads and writes within an atomic transaction.
// The namespace is scoped to the batch, so methods don't require it.
type BatchTx interface {
	Get(recordType, recordID string) (*Record, error)
	Put(recordType, recordID string, rec *Record) error
	PutCAS(recordType, recordID string, expectedVersion uint64, rec *Record) error
	Delete(recordType, recordID string) error
}

// Repository defines the interface for record storage.
type Repository interface {
	Put(namespace, recordType, recordID string, rec *Record) error
	Get(namespace, recordType, recordID string) (*Record, error)
	Delete(namespace, recordType, recordID string) error
	List(namespace, recordType string) ([]string, error)
	PutCAS(namespace, recordType, recordID string, expectedVersion uint64, rec *Record) error
	Batch(namespace string, fn func(tx BatchTx) error) error
}
