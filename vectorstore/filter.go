package vectorstore

// Filter is a conjunction of predicates over payload fields. Each backend
// translates it to its native query language: Qdrant filter conditions for
// the gRPC backend, SQL over payload JSON for the embedded backend.
type Filter struct {
	conds []condition
}

type condition interface {
	isCondition()
}

// eqCond matches a payload field exactly.
type eqCond struct {
	field string
	value string
}

// inCond matches when the payload field (scalar or array) contains any of
// the values.
type inCond struct {
	field  string
	values []string
}

// dateRangeCond bounds an ISO-8601 date field. Empty bounds are open.
type dateRangeCond struct {
	field string
	gte   string
	lte   string
}

func (eqCond) isCondition()        {}
func (inCond) isCondition()        {}
func (dateRangeCond) isCondition() {}

// NewFilter returns an empty filter. Predicates chain:
//
//	NewFilter().Eq("opinion_type", "majority").DateRange("publication_date", from, to)
func NewFilter() *Filter {
	return &Filter{}
}

// Eq adds an exact-match predicate.
func (f *Filter) Eq(field, value string) *Filter {
	if value != "" {
		f.conds = append(f.conds, eqCond{field: field, value: value})
	}
	return f
}

// In adds a set-membership predicate: the field (or any element of an
// array field) must equal one of the values.
func (f *Filter) In(field string, values []string) *Filter {
	if len(values) > 0 {
		f.conds = append(f.conds, inCond{field: field, values: values})
	}
	return f
}

// DateRange adds an inclusive ISO-8601 date-range predicate. Either bound
// may be empty.
func (f *Filter) DateRange(field, gte, lte string) *Filter {
	if gte != "" || lte != "" {
		f.conds = append(f.conds, dateRangeCond{field: field, gte: gte, lte: lte})
	}
	return f
}

// Empty reports whether the filter carries no predicates. A nil filter is
// empty.
func (f *Filter) Empty() bool {
	return f == nil || len(f.conds) == 0
}
