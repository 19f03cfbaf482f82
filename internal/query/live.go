package query

import (
	"fmt"
	"strings"
)

// renderLive compiles cq straight to SQL and live bind values in one pass,
// for queries that use a custom operator. Custom builders receive real
// values while rendering (spec §4.G), so their output can embed
// value-dependent fragments that would make prepared-shape caching unsafe;
// this path always re-renders and is never looked up in the prepared
// cache.
func renderLive(b *Builder, cq *compiledQuery, mode planMode) (sql string, params []any, err error) {
	qc := &QueryContext{}
	var errOut error

	renderReq := func(alias string, rc resolvedComponent) string {
		frag := fmt.Sprintf("EXISTS (SELECT 1 FROM components %s WHERE %s.entity_id = e.id AND %s.type_id = %d AND %s.deleted_at IS NULL",
			alias, alias, alias, rc.typeID, alias)
		for _, pred := range rc.predicates {
			if isBuiltinOperator(pred.Op) {
				var ph string
				if pred.Op != IS_NULL && pred.Op != IS_NOT_NULL {
					ph = qc.Bind(predicateValue(pred))
				}
				frag += " AND " + builtinFragment(alias, pred, ph)
				continue
			}
			builder, ok := lookupCustomOperator(pred.Op)
			if !ok {
				errOut = fmt.Errorf("query: unknown operator %q", pred.Op)
				continue
			}
			fragment, _ := builder(alias, qc, pred.FieldPath, pred.Value)
			frag += " AND " + fragment
		}
		return frag + ")"
	}

	var clauses []string
	for i, rc := range cq.required {
		clauses = append(clauses, renderReq(fmt.Sprintf("r%d", i), rc))
	}
	for gi, alts := range cq.orGroups {
		var parts []string
		for ai, rc := range alts {
			parts = append(parts, renderReq(fmt.Sprintf("o%d_%d", gi, ai), rc))
		}
		clauses = append(clauses, "("+strings.Join(parts, " OR ")+")")
	}
	for i, typeID := range cq.withoutTypeIDs {
		alias := fmt.Sprintf("wo%d", i)
		clauses = append(clauses, fmt.Sprintf("NOT EXISTS (SELECT 1 FROM components %s WHERE %s.entity_id = e.id AND %s.type_id = %d AND %s.deleted_at IS NULL)",
			alias, alias, alias, typeID, alias))
	}
	if errOut != nil {
		return "", nil, errOut
	}

	var sb strings.Builder
	if mode == modeCount {
		sb.WriteString("SELECT COUNT(*) FROM entities e WHERE e.deleted_at IS NULL")
	} else {
		sb.WriteString("SELECT e.id, e.created_at, e.updated_at, e.deleted_at FROM entities e")
		if cq.sort != nil {
			fmt.Fprintf(&sb, " LEFT JOIN components sc ON sc.entity_id = e.id AND sc.type_id = %d AND sc.deleted_at IS NULL", cq.sort.typeID)
		}
		sb.WriteString(" WHERE e.deleted_at IS NULL")
	}
	for _, c := range clauses {
		sb.WriteString(" AND ")
		sb.WriteString(c)
	}
	if b.findID != nil {
		fmt.Fprintf(&sb, " AND e.id = %s", qc.Bind(*b.findID))
	}
	if b.excludeID != nil {
		fmt.Fprintf(&sb, " AND e.id != %s", qc.Bind(*b.excludeID))
	}
	if mode != modeCount {
		if cq.sort != nil {
			dir := cq.sort.dir
			if dir == "" {
				dir = Asc
			}
			fmt.Fprintf(&sb, " ORDER BY (sc.data->>'%s') %s NULLS LAST, e.id ASC", cq.sort.field, dir)
		} else {
			sb.WriteString(" ORDER BY e.id ASC")
		}
		if b.limit != nil {
			fmt.Fprintf(&sb, " LIMIT %s", qc.Bind(*b.limit))
		}
		if b.offset != nil {
			fmt.Fprintf(&sb, " OFFSET %s", qc.Bind(*b.offset))
		}
	}

	return sb.String(), qc.values, nil
}

// builtinFragment renders a built-in predicate's comparison text given an
// already-allocated placeholder, reusing jsonExpr's cast choice.
func builtinFragment(alias string, pred Predicate, ph string) string {
	switch pred.Op {
	case EQ:
		return fmt.Sprintf("%s = %s", jsonExpr(alias, pred.FieldPath, pred.Value), ph)
	case NEQ:
		return fmt.Sprintf("%s != %s", jsonExpr(alias, pred.FieldPath, pred.Value), ph)
	case GT:
		return fmt.Sprintf("%s > %s", jsonExpr(alias, pred.FieldPath, pred.Value), ph)
	case GTE:
		return fmt.Sprintf("%s >= %s", jsonExpr(alias, pred.FieldPath, pred.Value), ph)
	case LT:
		return fmt.Sprintf("%s < %s", jsonExpr(alias, pred.FieldPath, pred.Value), ph)
	case LTE:
		return fmt.Sprintf("%s <= %s", jsonExpr(alias, pred.FieldPath, pred.Value), ph)
	case LIKE:
		return fmt.Sprintf("%s.data->>'%s' LIKE %s", alias, pred.FieldPath, ph)
	case ILIKE:
		return fmt.Sprintf("%s.data->>'%s' ILIKE %s", alias, pred.FieldPath, ph)
	case IN:
		return fmt.Sprintf("%s = ANY(%s)", jsonExpr(alias, pred.FieldPath, sliceSample(pred.Value)), ph)
	case NOT_IN:
		return fmt.Sprintf("%s <> ALL(%s)", jsonExpr(alias, pred.FieldPath, sliceSample(pred.Value)), ph)
	case IS_NULL:
		return fmt.Sprintf("%s.data->'%s' IS NULL", alias, pred.FieldPath)
	case IS_NOT_NULL:
		return fmt.Sprintf("%s.data->'%s' IS NOT NULL", alias, pred.FieldPath)
	default:
		return "TRUE"
	}
}
