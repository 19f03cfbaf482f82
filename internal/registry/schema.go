package registry

// PropertyKind enumerates the scalar kinds a component field can declare.
type PropertyKind string

const (
	PropertyString    PropertyKind = "string"
	PropertyInt       PropertyKind = "int"
	PropertyFloat     PropertyKind = "float"
	PropertyBool      PropertyKind = "bool"
	PropertyTimestamp PropertyKind = "timestamp"
	PropertyJSON      PropertyKind = "json"
)

// PropertyDescriptor describes one field of a component's payload.
type PropertyDescriptor struct {
	Name    string       `json:"name"`
	Kind    PropertyKind `json:"kind"`
	Indexed bool         `json:"indexed,omitempty"`
}

// PropertySchema is the ordered set of fields a component type declares.
// Order is preserved for deterministic DDL generation but lookups are by
// name.
type PropertySchema []PropertyDescriptor

// IndexedFields returns the subset of descriptors marked Indexed, in
// declaration order.
func (s PropertySchema) IndexedFields() []PropertyDescriptor {
	out := make([]PropertyDescriptor, 0, len(s))
	for _, d := range s {
		if d.Indexed {
			out = append(out, d)
		}
	}
	return out
}

// Get returns the descriptor for name, if declared.
func (s PropertySchema) Get(name string) (PropertyDescriptor, bool) {
	for _, d := range s {
		if d.Name == name {
			return d, true
		}
	}
	return PropertyDescriptor{}, false
}

// Equal reports whether two schemas declare the same fields with the same
// kinds and indexing hints, independent of declaration order. Used to
// detect the "duplicate registration with mismatched schema" fatal case.
func (s PropertySchema) Equal(other PropertySchema) bool {
	if len(s) != len(other) {
		return false
	}
	byName := make(map[string]PropertyDescriptor, len(s))
	for _, d := range s {
		byName[d.Name] = d
	}
	for _, d := range other {
		existing, ok := byName[d.Name]
		if !ok || existing != d {
			return false
		}
	}
	return true
}
