// Package schema owns the storage relation layout of spec §3/§4.B: the
// entities, components, and entity_components tables, the component_types
// metadata table, and the LIST/HASH partitioning strategy over
// components.type_id.
package schema

import (
	"fmt"
	"strings"

	"github.com/ecsdb/ecsdb/internal/registry"
)

// baseDDL creates the three fixed relations plus the metadata table. The
// components table is declared PARTITION BY {LIST|HASH} (type_id); its
// per-type or fixed-N partitions are created separately (see HashPartitionDDL and ListPartitionDDL)
// because that step depends on the chosen strategy and, for LIST, on the
// set of registered component names.
const baseDDL = `
CREATE TABLE IF NOT EXISTS entities (
    id UUID PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    deleted_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS component_types (
    name TEXT PRIMARY KEY,
    type_id BIGINT UNIQUE NOT NULL,
    schema JSONB NOT NULL DEFAULT '[]',
    registered_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS components (
    id UUID NOT NULL,
    entity_id UUID NOT NULL,
    type_id BIGINT NOT NULL,
    name TEXT NOT NULL,
    data JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    deleted_at TIMESTAMPTZ,
    PRIMARY KEY (type_id, id)
) PARTITION BY %s (type_id);

CREATE TABLE IF NOT EXISTS entity_components (
    entity_id UUID NOT NULL,
    type_id BIGINT NOT NULL,
    component_id UUID NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    deleted_at TIMESTAMPTZ,
    PRIMARY KEY (entity_id, type_id, component_id)
);

CREATE INDEX IF NOT EXISTS idx_components_entity_type ON components (entity_id, type_id);
CREATE INDEX IF NOT EXISTS idx_components_type ON components (type_id);
CREATE INDEX IF NOT EXISTS idx_components_data_gin ON components USING GIN (data);
CREATE INDEX IF NOT EXISTS idx_entity_components_type_entity ON entity_components (type_id, entity_id);
`

// BaseDDL renders the fixed-relation DDL for the given partition strategy.
func BaseDDL(strategy registry.PartitionStrategy) string {
	kw := "LIST"
	if strategy == registry.StrategyHash {
		kw = "HASH"
	}
	return fmt.Sprintf(baseDDL, kw)
}

// HashPartitionDDL renders CREATE TABLE statements for all N fixed hash
// partitions. Safe to run repeatedly — every statement is IF NOT EXISTS.
func HashPartitionDDL(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS components_p%d PARTITION OF components FOR VALUES WITH (MODULUS %d, REMAINDER %d);\n", i, n, i)
	}
	return b.String()
}

// ListPartitionDDL renders the CREATE TABLE statement for a single LIST
// partition dedicated to one component type-ID.
func ListPartitionDDL(typeID int64, tableName string) string {
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s PARTITION OF components FOR VALUES IN (%d);",
		quoteIdent(tableName), typeID,
	)
}

// IndexedFieldDDL renders an expression index on a JSON field path for a
// declared indexed property, scoped to one component's LIST partition
// (direct-addressing) or the parent table (HASH, where type_id pruning
// already narrows the scan).
func IndexedFieldDDL(tableName, indexName, fieldPath string, numeric bool) string {
	expr := fmt.Sprintf("(data->>'%s')", fieldPath)
	if numeric {
		expr = fmt.Sprintf("((data->>'%s')::double precision)", fieldPath)
	}
	return fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s (%s);",
		quoteIdent(indexName), quoteIdent(tableName), expr,
	)
}

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
