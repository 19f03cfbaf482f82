package query

import (
	"fmt"
	"strings"

	"github.com/ecsdb/ecsdb/internal/ecserr"
	"github.com/ecsdb/ecsdb/internal/preparedcache"
	"github.com/ecsdb/ecsdb/internal/registry"
)

type planMode string

const (
	modeRows  planMode = "rows"
	modeCount planMode = "count"
)

// resolvedComponent is a With/WithOr alternative after its component name
// has been resolved to a stable type-ID.
type resolvedComponent struct {
	component  string
	typeID     int64
	predicates []Predicate
}

// compiledQuery is a Builder's state after every component name has been
// resolved and validated, ready to render to SQL. Splitting compile (can
// fail: unregistered component, unsupported operator) from render (cannot
// fail: pure string building) lets render's output be cached by shape
// without re-validating on every cache hit.
type compiledQuery struct {
	required         []resolvedComponent
	orGroups         [][]resolvedComponent
	withoutTypeIDs   []int64
	findID           bool
	excludeID        bool
	sort             *resolvedSort
	limit            bool
	offset           bool
	hasCustomOperator bool
}

type resolvedSort struct {
	typeID int64
	field  string
	dir    SortDirection
}

func resolveFilter(reg *registry.Registry, cf ComponentFilter) (resolvedComponent, error) {
	typeID, ok := reg.TypeIDOf(cf.Component)
	if !ok {
		return resolvedComponent{}, ecserr.Validation("query: component %q is not registered", cf.Component)
	}
	for _, pred := range cf.Predicates {
		if !isBuiltinOperator(pred.Op) {
			if _, ok := lookupCustomOperator(pred.Op); !ok {
				return resolvedComponent{}, ecserr.Validation("query: unknown operator %q on field %q", pred.Op, pred.FieldPath)
			}
		}
	}
	return resolvedComponent{component: cf.Component, typeID: typeID, predicates: cf.Predicates}, nil
}

// compile validates and resolves a Builder's accumulated state.
func compile(b *Builder) (*compiledQuery, error) {
	reg := b.deps.registry()
	cq := &compiledQuery{
		findID:    b.findID != nil,
		excludeID: b.excludeID != nil,
		limit:     b.limit != nil,
		offset:    b.offset != nil,
	}

	for _, req := range b.requirements {
		switch r := req.(type) {
		case singleRequirement:
			rc, err := resolveFilter(reg, ComponentFilter(r))
			if err != nil {
				return nil, err
			}
			cq.required = append(cq.required, rc)
			cq.hasCustomOperator = cq.hasCustomOperator || hasCustomOp(rc.predicates)
		case orRequirement:
			var alts []resolvedComponent
			for _, cf := range r {
				rc, err := resolveFilter(reg, cf)
				if err != nil {
					return nil, err
				}
				alts = append(alts, rc)
				cq.hasCustomOperator = cq.hasCustomOperator || hasCustomOp(rc.predicates)
			}
			cq.orGroups = append(cq.orGroups, alts)
		default:
			return nil, ecserr.Validation("query: unknown requirement type")
		}
	}

	for _, name := range b.without {
		typeID, ok := reg.TypeIDOf(name)
		if !ok {
			return nil, ecserr.Validation("query: component %q is not registered", name)
		}
		cq.withoutTypeIDs = append(cq.withoutTypeIDs, typeID)
	}

	if b.sort != nil {
		typeID, ok := reg.TypeIDOf(b.sort.component)
		if !ok {
			return nil, ecserr.Validation("query: sortBy component %q is not registered", b.sort.component)
		}
		cq.sort = &resolvedSort{typeID: typeID, field: b.sort.field, dir: b.sort.dir}
	}

	if len(cq.required) == 0 && len(cq.orGroups) == 0 && cq.findID == false {
		return nil, ecserr.Validation("query: at least one with(), withOr(), or findById() requirement is required")
	}

	return cq, nil
}

func hasCustomOp(preds []Predicate) bool {
	for _, p := range preds {
		if !isBuiltinOperator(p.Op) {
			return true
		}
	}
	return false
}

// shapeKey fingerprints cq's structure: components, fields, operators,
// sort, and the presence (never value) of findById/excludeEntityId/limit/
// offset/populate. Two queries differing only in literal values produce
// the same key.
func shapeKey(cq *compiledQuery, mode planMode, populate bool, eagerCount int) preparedcache.ShapeKey {
	var sb strings.Builder
	sb.WriteString(string(mode))
	for _, rc := range cq.required {
		sb.WriteString("|W:")
		sb.WriteString(rc.component)
		for _, pred := range rc.predicates {
			fmt.Fprintf(&sb, ":%s%s", pred.FieldPath, pred.Op)
		}
	}
	for _, alts := range cq.orGroups {
		sb.WriteString("|OR(")
		for _, rc := range alts {
			sb.WriteString(rc.component)
			for _, pred := range rc.predicates {
				fmt.Fprintf(&sb, ":%s%s", pred.FieldPath, pred.Op)
			}
			sb.WriteString(",")
		}
		sb.WriteString(")")
	}
	for _, typeID := range cq.withoutTypeIDs {
		fmt.Fprintf(&sb, "|WO:%d", typeID)
	}
	if cq.findID {
		sb.WriteString("|FID")
	}
	if cq.excludeID {
		sb.WriteString("|EID")
	}
	if cq.sort != nil {
		fmt.Fprintf(&sb, "|SORT:%d:%s:%s", cq.sort.typeID, cq.sort.field, cq.sort.dir)
	}
	if cq.limit {
		sb.WriteString("|LIMIT")
	}
	if cq.offset {
		sb.WriteString("|OFFSET")
	}
	if populate {
		sb.WriteString("|POP")
	}
	if eagerCount > 0 {
		fmt.Fprintf(&sb, "|EAGER:%d", eagerCount)
	}
	return preparedcache.ShapeKey(sb.String())
}

// render builds the SQL text for cq, returning the placeholder-name list
// an executor uses to bind live values in the same order. Pure function of
// cq and mode — never touches live predicate values for built-in
// operators, so its output is safe to cache by shapeKey. Not used when
// cq.hasCustomOperator: see renderLive.
func render(cq *compiledQuery, mode planMode) (sql string, paramNames []string) {
	rc := &renderCtx{}

	var top []Node
	for i, r := range cq.required {
		top = append(top, RequirementNode{
			Alias:      fmt.Sprintf("r%d", i),
			TypeID:     r.typeID,
			ParamKey:   fmt.Sprintf("req:%d", i),
			Predicates: r.predicates,
		})
	}
	for gi, alts := range cq.orGroups {
		var children []Node
		for ai, r := range alts {
			children = append(children, RequirementNode{
				Alias:      fmt.Sprintf("o%d_%d", gi, ai),
				TypeID:     r.typeID,
				ParamKey:   fmt.Sprintf("or:%d:%d", gi, ai),
				Predicates: r.predicates,
			})
		}
		top = append(top, OrNode{Children: children})
	}
	for i, typeID := range cq.withoutTypeIDs {
		top = append(top, NotNode{Child: RequirementNode{
			Alias:    fmt.Sprintf("wo%d", i),
			TypeID:   typeID,
			ParamKey: fmt.Sprintf("without:%d", i),
		}})
	}

	var b strings.Builder
	if mode == modeCount {
		b.WriteString("SELECT COUNT(*) FROM entities e WHERE e.deleted_at IS NULL")
	} else {
		b.WriteString("SELECT e.id, e.created_at, e.updated_at, e.deleted_at FROM entities e")
		if cq.sort != nil {
			fmt.Fprintf(&b, " LEFT JOIN components sc ON sc.entity_id = e.id AND sc.type_id = %d AND sc.deleted_at IS NULL", cq.sort.typeID)
		}
		b.WriteString(" WHERE e.deleted_at IS NULL")
	}

	if len(top) > 0 {
		b.WriteString(" AND ")
		b.WriteString(AndNode{Children: top}.SQL(rc))
	}
	if cq.findID {
		fmt.Fprintf(&b, " AND e.id = %s", rc.placeholder("findById"))
	}
	if cq.excludeID {
		fmt.Fprintf(&b, " AND e.id != %s", rc.placeholder("excludeId"))
	}

	if mode != modeCount {
		if cq.sort != nil {
			dir := cq.sort.dir
			if dir == "" {
				dir = Asc
			}
			fmt.Fprintf(&b, " ORDER BY (sc.data->>'%s') %s NULLS LAST, e.id ASC", cq.sort.field, dir)
		} else {
			b.WriteString(" ORDER BY e.id ASC")
		}
		if cq.limit {
			fmt.Fprintf(&b, " LIMIT %s", rc.placeholder("limit"))
		}
		if cq.offset {
			fmt.Fprintf(&b, " OFFSET %s", rc.placeholder("offset"))
		}
	}

	return b.String(), rc.paramNames
}

// bindValues walks paramNames in the order render produced them, pulling
// the live value each placeholder needs from the Builder's own state —
// render and bindValues must iterate requirements/orGroups in lockstep
// order, which both achieve by deriving from the same compiledQuery.
func bindValues(b *Builder, cq *compiledQuery, paramNames []string) ([]any, error) {
	out := make([]any, 0, len(paramNames))
	for _, key := range paramNames {
		switch {
		case key == "findById":
			out = append(out, *b.findID)
		case key == "excludeId":
			out = append(out, *b.excludeID)
		case key == "limit":
			out = append(out, *b.limit)
		case key == "offset":
			out = append(out, *b.offset)
		case strings.HasPrefix(key, "req:"):
			var i, j int
			fmt.Sscanf(key, "req:%d:%d", &i, &j)
			out = append(out, predicateValue(cq.required[i].predicates[j]))
		case strings.HasPrefix(key, "or:"):
			var gi, ai, j int
			fmt.Sscanf(key, "or:%d:%d:%d", &gi, &ai, &j)
			out = append(out, predicateValue(cq.orGroups[gi][ai].predicates[j]))
		default:
			return nil, ecserr.Validation("query: internal error: unrecognized placeholder key %q", key)
		}
	}
	return out, nil
}
