// Package storage holds the row types shared by the entity, query, and
// loader packages, and the DSN construction for
// the PostgreSQL connection parameters of spec §6.
package storage

import (
	"time"

	"github.com/google/uuid"
)

// EntityRow mirrors one row of the entities table.
type EntityRow struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// ComponentRow mirrors one row of the components table (a single type-ID
// partition row, LIST or HASH).
type ComponentRow struct {
	ID        uuid.UUID
	EntityID  uuid.UUID
	TypeID    int64
	Name      string
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// EntityComponentRow mirrors one row of the entity_components join index.
type EntityComponentRow struct {
	EntityID    uuid.UUID
	TypeID      int64
	ComponentID uuid.UUID
}
