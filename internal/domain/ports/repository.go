package ports

import (
	"context"
	"errors"

	"github.com/hsdfat8/fieldops/internal/domain/models"
)

// BackendType identifies which persistence substrate served a call
type BackendType string

const (
	BackendStructured BackendType = "structured"
	BackendDocument   BackendType = "document"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// RecordBackend is the CRUD contract both persistence substrates honor.
// Select and Get decode into dest, which must point to a slice of records
// or a single record of the collection's concrete type.
type RecordBackend interface {
	Type() BackendType

	// NextID reserves the next PREFIX-NNN id for the collection
	NextID(ctx context.Context, collection models.Collection) (string, error)

	Insert(ctx context.Context, record models.Record) error
	Select(ctx context.Context, collection models.Collection, filter models.Filter, dest any) error
	Get(ctx context.Context, collection models.Collection, id string, dest any) error

	// Update merges changes into one record, ErrNotFound when the id is unknown
	Update(ctx context.Context, collection models.Collection, id string, changes models.Changes) error

	// UpdateWhere merges changes into every matching record
	UpdateWhere(ctx context.Context, collection models.Collection, filter models.Filter, changes models.Changes) (int64, error)

	// Delete removes the record entirely
	Delete(ctx context.Context, collection models.Collection, id string) error
}

// TransactionalBackend runs several operations atomically
type TransactionalBackend interface {
	RecordBackend

	// RunInTransaction commits when fn returns nil and rolls back otherwise
	RunInTransaction(ctx context.Context, fn func(tx RecordBackend) error) error
}

// StructuredBackend is the transactional, schema-enforcing substrate
type StructuredBackend interface {
	TransactionalBackend

	// Probe performs a create/insert/select/compare round trip and
	// returns nil only if the value read back matches what was written.
	Probe(ctx context.Context) error

	DatabaseInfo(ctx context.Context) (*DatabaseInfo, error)
}
