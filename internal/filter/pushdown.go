package filter

// OpSet is the set of operators a backing store can execute natively.
type OpSet map[Op]struct{}

// NewOpSet builds an OpSet from a list of operators.
func NewOpSet(ops ...Op) OpSet {
	s := make(OpSet, len(ops))
	for _, op := range ops {
		s[op] = struct{}{}
	}
	return s
}

// Has reports whether the set contains op.
func (s OpSet) Has(op Op) bool {
	_, ok := s[op]
	return ok
}

// ComparisonOps returns the full comparison operator set.
func ComparisonOps() []Op {
	return []Op{OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte, OpLike, OpIn, OpIsNull}
}

// LogicalOps returns the logical operator set.
func LogicalOps() []Op {
	return []Op{OpAnd, OpOr, OpNot}
}

// SpatialOps returns the spatial operator set.
func SpatialOps() []Op {
	return []Op{OpIntersects, OpContains, OpWithin}
}

// TemporalOps returns the temporal operator set.
func TemporalOps() []Op {
	return []Op{OpBefore, OpAfter, OpDuring}
}

// AllOps returns every operator in the language.
func AllOps() []Op {
	ops := ComparisonOps()
	ops = append(ops, LogicalOps()...)
	ops = append(ops, SpatialOps()...)
	ops = append(ops, TemporalOps()...)
	return ops
}

// Pushdown decides whether the whole tree can be handed to a store with the
// given operator capabilities. It is all or nothing: if any subtree uses an
// operator outside caps, the result is (nil, false) and the caller must fall
// back to in-process evaluation for the entire query. Partial pushdown is
// deliberately not attempted; merging store-filtered and locally-filtered
// streams cannot cheaply preserve sort order and cursor stability.
func Pushdown(n Node, caps OpSet) (Node, bool) {
	if n == nil {
		return nil, true
	}
	for _, op := range Ops(n) {
		if !caps.Has(op) {
			return nil, false
		}
	}
	return n, true
}
