package entity

import (
	"github.com/google/uuid"
)

// Clone returns a new, unpersisted Entity carrying a copy of every
// component currently attached in memory. The clone gets a fresh ID and
// starts dirty, so Save on it inserts a brand-new entity and brand-new
// component rows rather than touching the original's.
//
// Payloads are copied by reference, matching the loosely-typed payload
// model (any): callers storing mutable structures should deep-copy the
// payload themselves before mutating the clone's copy.
func (e *Entity) Clone() *Entity {
	clone := New(e.deps)
	for typeID, slot := range e.components {
		id, err := uuid.NewV7()
		if err != nil {
			id = uuid.New()
		}
		clone.components[typeID] = &componentSlot{
			id:        id,
			typeID:    slot.typeID,
			name:      slot.name,
			payload:   slot.payload,
			persisted: false,
			dirty:     true,
		}
	}
	return clone
}

// MakeRef returns a new Entity bound to src's ID that shares src's
// already-loaded component slots by reference instead of re-fetching them,
// for assembling an in-memory aggregate out of entities that were loaded
// separately without forcing an extra round trip (or a separate Save) for
// each one. The result starts persisted and clean: Save on it without
// further Add/Set/Remove is a no-op, same as any other unmodified loaded
// entity.
func MakeRef(src *Entity) *Entity {
	components := make(map[int64]*componentSlot, len(src.components))
	for typeID, slot := range src.components {
		components[typeID] = slot
	}
	return &Entity{
		ID:             src.ID,
		CreatedAt:      src.CreatedAt,
		UpdatedAt:      src.UpdatedAt,
		DeletedAt:      src.DeletedAt,
		persisted:      true,
		dirty:          false,
		components:     components,
		pendingRemoval: make(map[int64]bool),
		deps:           src.deps,
	}
}
