// Package query implements the fluent query planner and executor of spec
// §4.G: a chainable builder over required/forbidden components and their
// field predicates, compiled to one SQL statement against the entities and
// components tables and executed through the entity and loader layers.
package query

import (
	"fmt"
	"sync"
)

// Operator is a filter comparison against one component field. The
// built-in set mirrors spec §4.G; RegisterOperator extends it for
// domain-specific builders (e.g. spatial operators) that need direct
// control over the SQL fragment.
type Operator string

const (
	EQ         Operator = "EQ"
	NEQ        Operator = "NEQ"
	GT         Operator = "GT"
	GTE        Operator = "GTE"
	LT         Operator = "LT"
	LTE        Operator = "LTE"
	LIKE       Operator = "LIKE"
	ILIKE      Operator = "ILIKE"
	IN         Operator = "IN"
	NOT_IN     Operator = "NOT_IN"
	IS_NULL    Operator = "IS_NULL"
	IS_NOT_NULL Operator = "IS_NOT_NULL"
)

// Predicate is one (fieldPath, operator, value) tuple. FieldPath addresses
// a top-level key of the component's JSON payload. Value is ignored for
// IS_NULL/IS_NOT_NULL.
type Predicate struct {
	FieldPath string
	Op        Operator
	Value     any
}

func p(field string, op Operator, value any) Predicate {
	return Predicate{FieldPath: field, Op: op, Value: value}
}

// Eq, Neq, ... build predicates for With/WithOr call sites. Kept as plain
// functions rather than Predicate methods so a filter list reads as
// query.Eq("status", "open"), query.Gt("priority", 1).
func Eq(field string, v any) Predicate     { return p(field, EQ, v) }
func Neq(field string, v any) Predicate    { return p(field, NEQ, v) }
func Gt(field string, v any) Predicate     { return p(field, GT, v) }
func Gte(field string, v any) Predicate    { return p(field, GTE, v) }
func Lt(field string, v any) Predicate     { return p(field, LT, v) }
func Lte(field string, v any) Predicate    { return p(field, LTE, v) }
func Like(field string, v any) Predicate   { return p(field, LIKE, v) }
func ILike(field string, v any) Predicate  { return p(field, ILIKE, v) }
func In(field string, v any) Predicate     { return p(field, IN, v) }
func NotIn(field string, v any) Predicate  { return p(field, NOT_IN, v) }
func IsNull(field string) Predicate        { return p(field, IS_NULL, nil) }
func IsNotNull(field string) Predicate     { return p(field, IS_NOT_NULL, nil) }

// SortDirection is the direction passed to Builder.SortBy.
type SortDirection string

const (
	Asc  SortDirection = "ASC"
	Desc SortDirection = "DESC"
)

// ComponentFilter names a required component and the predicates on its
// fields, the unit With and the alternatives of an OrGroup are built from.
type ComponentFilter struct {
	Component  string
	Predicates []Predicate
}

// OrGroup is a disjunction across alternative component requirements —
// "entity has component A matching these filters, or component B matching
// those" (spec §4.G's with(or([...]))).
type OrGroup []ComponentFilter

// Or is a small constructor so call sites read as
// b.WithOr(query.Or(ComponentFilter{...}, ComponentFilter{...})).
func Or(alternatives ...ComponentFilter) OrGroup { return OrGroup(alternatives) }

// requirement is one entry in the builder's ordered list of With/WithOr
// calls. Exactly one of the two concrete types below satisfies it.
type requirement interface{ isRequirement() }

type singleRequirement ComponentFilter

func (singleRequirement) isRequirement() {}

type orRequirement OrGroup

func (orRequirement) isRequirement() {}

// Node is the compiled WHERE-clause representation the planner builds from
// a resolved requirement list — adapted from a parse-tree shape (And/Or/Not
// over a leaf comparison) generalized here to leaves that are themselves
// "entity has a live component satisfying these predicates" existence
// checks rather than raw field comparisons, since a requirement is always
// scoped to one component's partition.
type Node interface {
	// SQL renders this node's fragment, allocating bound-parameter
	// placeholders from rc for any literal values it needs and recording
	// what each placeholder means in rc.paramNames.
	SQL(rc *renderCtx) string
}

// renderCtx accumulates placeholder allocations while a Node tree renders.
// paramNames[i] names what value belongs at $  (i+1); the executor walks
// the compiled query in the same order to produce the matching bind values.
type renderCtx struct {
	n          int
	paramNames []string
}

func (rc *renderCtx) placeholder(key string) string {
	rc.n++
	rc.paramNames = append(rc.paramNames, key)
	return fmt.Sprintf("$%d", rc.n)
}

// RequirementNode renders "EXISTS (SELECT 1 FROM components alias WHERE
// alias.entity_id = e.id AND alias.type_id = typeID AND alias.deleted_at
// IS NULL AND <predicates>)" — one required component and its filters.
type RequirementNode struct {
	Alias     string
	TypeID    int64
	ParamKey  string // prefix for this node's predicate placeholders
	Predicates []Predicate
}

func (n RequirementNode) SQL(rc *renderCtx) string {
	frag := fmt.Sprintf("EXISTS (SELECT 1 FROM components %s WHERE %s.entity_id = e.id AND %s.type_id = %d AND %s.deleted_at IS NULL",
		n.Alias, n.Alias, n.Alias, n.TypeID, n.Alias)
	for i, pred := range n.Predicates {
		key := fmt.Sprintf("%s:%d", n.ParamKey, i)
		cond := renderPredicate(n.Alias, pred, key, rc)
		frag += " AND " + cond
	}
	return frag + ")"
}

// NotNode negates a RequirementNode — spec's without(ctor).
type NotNode struct{ Child Node }

func (n NotNode) SQL(rc *renderCtx) string { return "NOT " + n.Child.SQL(rc) }

// AndNode conjoins children, the default combination of separate with()
// calls.
type AndNode struct{ Children []Node }

func (n AndNode) SQL(rc *renderCtx) string {
	if len(n.Children) == 0 {
		return "TRUE"
	}
	out := "(" + n.Children[0].SQL(rc)
	for _, c := range n.Children[1:] {
		out += " AND " + c.SQL(rc)
	}
	return out + ")"
}

// OrNode disjoins children — spec's with(or([...])) OR-group.
type OrNode struct{ Children []Node }

func (n OrNode) SQL(rc *renderCtx) string {
	if len(n.Children) == 0 {
		return "TRUE"
	}
	out := "(" + n.Children[0].SQL(rc)
	for _, c := range n.Children[1:] {
		out += " OR " + c.SQL(rc)
	}
	return out + ")"
}

// CustomOperatorBuilder renders a filter using an operator not in the
// built-in set. alias is the component partition's SQL alias in the
// surrounding EXISTS subquery; qc lets the builder allocate as many bound
// parameters as it needs. Queries using a custom operator opt out of
// prepared-SQL-shape reuse (see planner.go) since the fragment a builder
// returns may itself be value-dependent.
type CustomOperatorBuilder func(alias string, qc *QueryContext, fieldPath string, value any) (fragment string, paramsAdded int)

// QueryContext lets a CustomOperatorBuilder allocate parameter slots while
// rendering against a live value set (spec §4.G).
type QueryContext struct {
	values []any
}

// Bind appends value as the next bound parameter and returns its
// placeholder text.
func (qc *QueryContext) Bind(value any) string {
	qc.values = append(qc.values, value)
	return fmt.Sprintf("$%d", len(qc.values))
}

var (
	customOpsMu sync.RWMutex
	customOps   = map[Operator]CustomOperatorBuilder{}
)

// RegisterOperator installs a custom operator builder, available to every
// Builder in the process thereafter.
func RegisterOperator(op Operator, builder CustomOperatorBuilder) {
	customOpsMu.Lock()
	defer customOpsMu.Unlock()
	customOps[op] = builder
}

func lookupCustomOperator(op Operator) (CustomOperatorBuilder, bool) {
	customOpsMu.RLock()
	defer customOpsMu.RUnlock()
	b, ok := customOps[op]
	return b, ok
}

func isBuiltinOperator(op Operator) bool {
	switch op {
	case EQ, NEQ, GT, GTE, LT, LTE, LIKE, ILIKE, IN, NOT_IN, IS_NULL, IS_NOT_NULL:
		return true
	default:
		return false
	}
}
