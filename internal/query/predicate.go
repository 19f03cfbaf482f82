package query

import (
	"fmt"
	"reflect"
	"time"
)

// jsonExpr picks the cast a field's comparison needs based on the Go type
// of the value being compared against: JSONB fields are always extracted
// as text via ->>, then cast to match the value's type so numeric and
// boolean comparisons don't silently become lexical string comparisons.
func jsonExpr(alias, field string, sample any) string {
	base := fmt.Sprintf("%s.data->>'%s'", alias, field)
	switch sample.(type) {
	case bool:
		return "(" + base + ")::boolean"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return "(" + base + ")::double precision"
	case time.Time:
		return "(" + base + ")::timestamptz"
	default:
		return base
	}
}

// sliceSample returns the first element of a slice value, used to pick the
// IN/NOT_IN cast the same way jsonExpr picks one for scalar operators.
func sliceSample(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Len() == 0 {
		return nil
	}
	return rv.Index(0).Interface()
}

// renderPredicate renders one built-in-operator predicate against a
// component alias, allocating a placeholder from rc when the operator
// binds a value. key identifies this placeholder's origin for the
// executor's later value-binding pass.
func renderPredicate(alias string, pred Predicate, key string, rc *renderCtx) string {
	switch pred.Op {
	case EQ:
		return fmt.Sprintf("%s = %s", jsonExpr(alias, pred.FieldPath, pred.Value), rc.placeholder(key))
	case NEQ:
		return fmt.Sprintf("%s != %s", jsonExpr(alias, pred.FieldPath, pred.Value), rc.placeholder(key))
	case GT:
		return fmt.Sprintf("%s > %s", jsonExpr(alias, pred.FieldPath, pred.Value), rc.placeholder(key))
	case GTE:
		return fmt.Sprintf("%s >= %s", jsonExpr(alias, pred.FieldPath, pred.Value), rc.placeholder(key))
	case LT:
		return fmt.Sprintf("%s < %s", jsonExpr(alias, pred.FieldPath, pred.Value), rc.placeholder(key))
	case LTE:
		return fmt.Sprintf("%s <= %s", jsonExpr(alias, pred.FieldPath, pred.Value), rc.placeholder(key))
	case LIKE:
		return fmt.Sprintf("%s.data->>'%s' LIKE %s", alias, pred.FieldPath, rc.placeholder(key))
	case ILIKE:
		return fmt.Sprintf("%s.data->>'%s' ILIKE %s", alias, pred.FieldPath, rc.placeholder(key))
	case IN:
		expr := jsonExpr(alias, pred.FieldPath, sliceSample(pred.Value))
		return fmt.Sprintf("%s = ANY(%s)", expr, rc.placeholder(key))
	case NOT_IN:
		expr := jsonExpr(alias, pred.FieldPath, sliceSample(pred.Value))
		return fmt.Sprintf("%s <> ALL(%s)", expr, rc.placeholder(key))
	case IS_NULL:
		return fmt.Sprintf("%s.data->'%s' IS NULL", alias, pred.FieldPath)
	case IS_NOT_NULL:
		return fmt.Sprintf("%s.data->'%s' IS NOT NULL", alias, pred.FieldPath)
	default:
		// Unreachable: compile() rejects non-built-in operators before
		// this is ever called on the cacheable render path.
		return "TRUE"
	}
}

// predicateValue extracts the bind value a rendered placeholder needs,
// mirroring renderPredicate's choice of cast (IS_NULL/IS_NOT_NULL bind
// nothing and are skipped by the caller).
func predicateValue(pred Predicate) any {
	return pred.Value
}
