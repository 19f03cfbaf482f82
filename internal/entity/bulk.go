package entity

import (
	"context"

	"github.com/google/uuid"

	"github.com/ecsdb/ecsdb/internal/storage"
)

// LoadMultiple builds Entity shells from already-fetched entity rows,
// preserving input order. Used by the query executor once it has run its
// SQL and fetched the matching entities table rows; components are loaded
// lazily afterward via Get or eagerly via LoadComponents.
func LoadMultiple(deps Deps, rows []storage.EntityRow) []*Entity {
	out := make([]*Entity, len(rows))
	for i, row := range rows {
		out[i] = fromRow(deps, row)
	}
	return out
}

// LoadComponents eagerly attaches one component type across a batch of
// entities from already-fetched component rows, keyed by entity ID. Rows
// for entities not in the batch are ignored. Used by the query executor's
// populate/eagerLoadComponents path to avoid N individual Get calls.
func LoadComponents(ctx context.Context, deps Deps, entities []*Entity, componentName string, rows []storage.ComponentRow) error {
	typeID, ok := deps.Registry.TypeIDOf(componentName)
	if !ok {
		return nil
	}
	byEntity := make(map[uuid.UUID]storage.ComponentRow, len(rows))
	for _, row := range rows {
		byEntity[row.EntityID] = row
	}
	ctor, _ := deps.Registry.ConstructorOf(typeID)
	for _, e := range entities {
		row, ok := byEntity[e.ID]
		if !ok {
			continue
		}
		payload, extra, err := decodePayload(ctor, row.Data)
		if err != nil {
			return err
		}
		e.components[typeID] = &componentSlot{
			id:        row.ID,
			typeID:    typeID,
			name:      componentName,
			payload:   payload,
			persisted: true,
			dirty:     false,
			extra:     extra,
		}
	}
	return nil
}
