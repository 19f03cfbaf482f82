package registry

import (
	"hash/fnv"
	"regexp"
	"strings"
)

// DeriveTypeID computes a stable type-ID from a component name. It must be
// pure and deterministic so that a fresh process restart derives the same
// ID an already-running process would (spec §4.A: "typeId is derived
// deterministically from the component name so restarts yield the same
// value"). The caller is still responsible for persisting the
// (name, typeId) pair to component_types — derivation alone doesn't make a
// type "registered".
func DeriveTypeID(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	sum := h.Sum64()
	// Mask off the sign bit: type IDs are stored in a signed bigint column
	// and used as hash-partition keys, so keep them non-negative.
	return int64(sum &^ (1 << 63))
}

var nonPartitionSafe = regexp.MustCompile(`[^a-z0-9_]+`)

// PartitionSuffix sanitizes a component name into a suffix safe to embed in
// a LIST-partition table name (components_<suffix>): lowercase, each run of
// characters outside [a-z0-9_] becomes a single underscore, and the result is trimmed of leading/trailing underscores.
func PartitionSuffix(componentName string) string {
	s := strings.ToLower(componentName)
	s = nonPartitionSafe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		s = "component"
	}
	if len(s) > 48 {
		s = s[:48]
	}
	return s
}
