package pgstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/rkm/geocatalog/internal/filter"
	"github.com/rkm/geocatalog/internal/store"
)

// builder accumulates WHERE clauses and their positional arguments.
type builder struct {
	clauses []string
	args    []any
}

func newBuilder() *builder {
	return &builder{}
}

func (b *builder) where(clause string) {
	if clause != "" {
		b.clauses = append(b.clauses, clause)
	}
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *builder) whereSQL() string {
	if len(b.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.clauses, " AND ")
}

// predicate compiles the structural constraints and, when present, the
// pushed-down filter expression.
func (b *builder) predicate(p store.Predicate) error {
	if len(p.Collections) > 0 {
		b.where("collection = ANY(" + b.arg(p.Collections) + ")")
	}
	if len(p.IDs) > 0 {
		b.where("id = ANY(" + b.arg(p.IDs) + ")")
	}
	if box := normalizeBBox(p.BBox); box != nil {
		b.where(b.bboxClause(box))
	}
	if p.Start != nil {
		b.where("end_datetime >= " + b.arg(*p.Start))
	}
	if p.End != nil {
		b.where("start_datetime <= " + b.arg(*p.End))
	}
	if p.Expr != nil {
		clause, err := b.compile(p.Expr)
		if err != nil {
			return err
		}
		b.where(clause)
	}
	return nil
}

// bboxClause matches items whose bbox overlaps the query box. A box with
// west > east wraps the antimeridian and becomes a disjunction of its two
// halves.
func (b *builder) bboxClause(box []float64) string {
	parts := [][]float64{box}
	if box[0] > box[2] {
		parts = [][]float64{
			{box[0], box[1], 180, box[3]},
			{-180, box[1], box[2], box[3]},
		}
	}
	clauses := make([]string, len(parts))
	for i, part := range parts {
		clauses[i] = fmt.Sprintf("(bbox_west <= %s AND bbox_east >= %s AND bbox_south <= %s AND bbox_north >= %s)",
			b.arg(part[2]), b.arg(part[0]), b.arg(part[3]), b.arg(part[1]))
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return "(" + strings.Join(clauses, " OR ") + ")"
}

// afterClause builds the keyset resume condition: the row must come
// strictly after the cursor position in the total order.
func (b *builder) afterClause(sort []store.SortKey, after *store.AfterKey) string {
	var terms []string
	var equal []string

	for i, key := range sort {
		var v any
		if i < len(after.SortValues) {
			v = after.SortValues[i]
		}
		strict, eq := b.keyResume(key, v)
		terms = append(terms, strings.Join(append(append([]string{}, equal...), strict), " AND "))
		equal = append(equal, eq)
	}
	terms = append(terms, strings.Join(append(append([]string{}, equal...), "id > "+b.arg(after.ID)), " AND "))

	for i, t := range terms {
		terms[i] = "(" + t + ")"
	}
	return "(" + strings.Join(terms, " OR ") + ")"
}

// keyResume returns the strictly-after and the equality condition for one
// sort key at the cursor value. Rows whose key is null sort last in both
// directions, so from a non-null position they still lie ahead and the
// strict condition must admit them.
func (b *builder) keyResume(key store.SortKey, v any) (strict, eq string) {
	op := ">"
	if key.Desc {
		op = "<"
	}

	switch stripProperties(key.Field) {
	case filter.FieldID, filter.FieldCollection, filter.FieldDatetime:
		expr := sortKeyExprs(key.Field)[0]
		if v == nil {
			// Nothing non-null follows a null.
			return "FALSE", expr + " IS NULL"
		}
		ph := b.arg(sortArg(key.Field, v))
		return fmt.Sprintf("(%s %s %s OR %s IS NULL)", expr, op, ph, expr),
			fmt.Sprintf("%s = %s", expr, ph)
	}

	if v == nil {
		return "FALSE", typeRankExpr(key.Field) + " IS NULL"
	}

	if f, ok := v.(float64); ok {
		expr := numberExpr(key.Field)
		ph := b.arg(f)
		// Ascending order puts strings and missing values after every
		// number; descending, only the missing ones follow.
		tail := expr + " IS NULL"
		if key.Desc {
			tail = typeRankExpr(key.Field) + " IS NULL"
		}
		return fmt.Sprintf("(%s %s %s OR %s)", expr, op, ph, tail),
			fmt.Sprintf("%s = %s", expr, ph)
	}

	expr := textExpr(key.Field)
	ph := b.arg(fmt.Sprint(v))
	// Ascending, only missing values follow the string block; descending,
	// numbers do too.
	tail := typeRankExpr(key.Field) + " IS NULL"
	if key.Desc {
		tail = expr + " IS NULL"
	}
	return fmt.Sprintf("(%s %s %s OR %s)", expr, op, ph, tail),
		fmt.Sprintf("%s = %s", expr, ph)
}

// sortArg converts a cursor sort value to the argument type the sort
// expression expects. Only the datetime column needs a conversion back
// from the cursor's string form.
func sortArg(field string, v any) any {
	if stripProperties(field) == filter.FieldDatetime {
		if s, ok := v.(string); ok {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				return t
			}
		}
	}
	return v
}

// compile turns a filter node into a SQL clause. Spatial nodes are
// rejected; the planner never pushes them here.
func (b *builder) compile(n filter.Node) (string, error) {
	switch node := n.(type) {
	case *filter.Logical:
		return b.compileLogical(node)
	case *filter.Comparison:
		return b.compileComparison(node)
	case *filter.Temporal:
		return b.compileTemporal(node)
	default:
		return "", fmt.Errorf("node %T is not supported by the sql compiler", n)
	}
}

func (b *builder) compileLogical(node *filter.Logical) (string, error) {
	children := make([]string, len(node.Children))
	for i, child := range node.Children {
		clause, err := b.compile(child)
		if err != nil {
			return "", err
		}
		children[i] = clause
	}
	switch node.Op {
	case filter.OpAnd:
		return "(" + strings.Join(children, " AND ") + ")", nil
	case filter.OpOr:
		return "(" + strings.Join(children, " OR ") + ")", nil
	case filter.OpNot:
		// Three-valued logic excludes null-producing rows either way, so a
		// bare NOT with null-safe coalesce keeps SQL and the evaluator
		// aligned.
		return "(NOT COALESCE(" + children[0] + ", FALSE))", nil
	default:
		return "", fmt.Errorf("unknown logical operator %q", node.Op)
	}
}

func (b *builder) compileComparison(node *filter.Comparison) (string, error) {
	expr, err := propertyExpr(node.Property, node.Literal)
	if err != nil {
		return "", err
	}

	switch node.Op {
	case filter.OpIsNull:
		return "(" + expr + " IS NULL)", nil
	case filter.OpIn:
		placeholders := make([]string, 0, len(node.Literal.Arr))
		for _, el := range node.Literal.Arr {
			if el.Kind == filter.KindNull {
				continue
			}
			arg, err := literalArg(el)
			if err != nil {
				return "", err
			}
			placeholders = append(placeholders, b.arg(arg))
		}
		if len(placeholders) == 0 {
			return "FALSE", nil
		}
		// Retype the expression for the element kind of the list.
		expr, err = propertyExpr(node.Property, node.Literal.Arr[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s IN (%s))", expr, strings.Join(placeholders, ", ")), nil
	case filter.OpLike:
		return fmt.Sprintf("(%s LIKE %s)", expr, b.arg(node.Literal.Str)), nil
	case filter.OpEq, filter.OpNeq, filter.OpLt, filter.OpLte, filter.OpGt, filter.OpGte:
		arg, err := literalArg(node.Literal)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", expr, string(node.Op), b.arg(arg)), nil
	default:
		return "", fmt.Errorf("unknown comparison operator %q", node.Op)
	}
}

func (b *builder) compileTemporal(node *filter.Temporal) (string, error) {
	var startExpr, endExpr string
	if stripProperties(node.Property) == filter.FieldDatetime {
		startExpr, endExpr = "start_datetime", "end_datetime"
	} else {
		expr := timestampExpr(node.Property)
		startExpr, endExpr = expr, expr
	}

	switch node.Op {
	case filter.OpBefore:
		return fmt.Sprintf("(%s < %s)", endExpr, b.arg(node.Start)), nil
	case filter.OpAfter:
		return fmt.Sprintf("(%s > %s)", startExpr, b.arg(node.End)), nil
	case filter.OpDuring:
		clauses := []string{startExpr + " IS NOT NULL"}
		if !node.OpenStart {
			clauses = append(clauses, startExpr+" >= "+b.arg(node.Start))
		}
		if !node.OpenEnd {
			clauses = append(clauses, endExpr+" <= "+b.arg(node.End))
		}
		return "(" + strings.Join(clauses, " AND ") + ")", nil
	default:
		return "", fmt.Errorf("unknown temporal operator %q", node.Op)
	}
}

// propertyExpr maps a property reference to a SQL expression typed for the
// literal it is compared against.
func propertyExpr(property string, literal filter.Value) (string, error) {
	switch stripProperties(property) {
	case filter.FieldID:
		return "id", nil
	case filter.FieldCollection:
		return "collection", nil
	case filter.FieldDatetime:
		return "start_datetime", nil
	}

	switch literal.Kind {
	case filter.KindNumber:
		return numberExpr(property), nil
	case filter.KindBool:
		return boolExpr(property), nil
	case filter.KindTime:
		return timestampExpr(property), nil
	default:
		return jsonPathExpr(property), nil
	}
}

// The typed expressions below guard every cast behind a type check, so a
// row holding a differently typed value reads as null and drops out of the
// comparison instead of raising a cast error that aborts the whole query.
// That matches the in-process evaluator, which skips such items.

func numberExpr(property string) string {
	return "CASE WHEN jsonb_typeof(" + jsonValueExpr(property) +
		") = 'number' THEN (" + jsonPathExpr(property) + ")::double precision END"
}

func boolExpr(property string) string {
	return "CASE WHEN jsonb_typeof(" + jsonValueExpr(property) +
		") = 'boolean' THEN (" + jsonPathExpr(property) + ")::boolean END"
}

// timestampPattern admits RFC 3339 shaped strings before the timestamptz
// cast runs.
const timestampPattern = `^\d{4}-(0[1-9]|1[0-2])-(0[1-9]|[12]\d|3[01])[Tt ]([01]\d|2[0-3]):[0-5]\d:[0-5]\d`

func timestampExpr(property string) string {
	return "CASE WHEN " + jsonPathExpr(property) + " ~ '" + timestampPattern +
		"' THEN (" + jsonPathExpr(property) + ")::timestamptz END"
}

// textExpr reads a property as text, null for non-string values.
func textExpr(property string) string {
	return "CASE WHEN jsonb_typeof(" + jsonValueExpr(property) +
		") = 'string' THEN " + jsonPathExpr(property) + " END"
}

// typeRankExpr ranks value types the way the in-process comparison does:
// numbers before strings, anything else last.
func typeRankExpr(property string) string {
	return "CASE jsonb_typeof(" + jsonValueExpr(property) +
		") WHEN 'number' THEN 0 WHEN 'string' THEN 1 END"
}

// jsonPathExpr reads a dotted property path out of the properties document
// as text; jsonValueExpr reads it as jsonb for type inspection.
func jsonPathExpr(property string) string {
	return "properties #>> " + jsonPath(property)
}

func jsonValueExpr(property string) string {
	return "properties #> " + jsonPath(property)
}

func jsonPath(property string) string {
	path := strings.Split(stripProperties(property), ".")
	quoted := make([]string, len(path))
	for i, segment := range path {
		quoted[i] = strings.ReplaceAll(segment, "'", "''")
	}
	return "'{" + strings.Join(quoted, ",") + "}'"
}

func stripProperties(property string) string {
	return strings.TrimPrefix(property, "properties.")
}

func literalArg(v filter.Value) (any, error) {
	switch v.Kind {
	case filter.KindString:
		return v.Str, nil
	case filter.KindNumber:
		return v.Num, nil
	case filter.KindBool:
		return v.Bool, nil
	case filter.KindTime:
		return v.Time, nil
	default:
		return nil, fmt.Errorf("literal kind %d has no sql representation", v.Kind)
	}
}
