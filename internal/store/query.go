package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Op is a filter operator
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpIn       Op = "in"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpContains Op = "contains" // array field contains value
	OpSearch   Op = "search"   // case-insensitive substring over Fields
)

// Cond is a single filter condition
type Cond struct {
	Field  string
	Op     Op
	Value  any
	Fields []string // OpSearch only
}

// Filter is a conjunction of conditions
type Filter []Cond

// SortField orders results by a field
type SortField struct {
	Field string
	Desc  bool
}

// Query selects documents from a collection
type Query struct {
	Filter Filter
	Sort   []SortField
	Skip   int
	Limit  int      // 0 = no limit
	Fields []string // top-level fields to return, empty = whole document
}

func Eq(field string, value any) Cond  { return Cond{Field: field, Op: OpEq, Value: value} }
func Ne(field string, value any) Cond  { return Cond{Field: field, Op: OpNe, Value: value} }
func Lt(field string, value any) Cond  { return Cond{Field: field, Op: OpLt, Value: value} }
func Lte(field string, value any) Cond { return Cond{Field: field, Op: OpLte, Value: value} }
func Gt(field string, value any) Cond  { return Cond{Field: field, Op: OpGt, Value: value} }
func Gte(field string, value any) Cond { return Cond{Field: field, Op: OpGte, Value: value} }

// In matches documents whose field equals any of values
func In[T any](field string, values ...T) Cond {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Cond{Field: field, Op: OpIn, Value: vs}
}

// Contains matches documents whose array field holds value
func Contains(field string, value any) Cond {
	return Cond{Field: field, Op: OpContains, Value: value}
}

// Search matches documents where any of fields contains text, ignoring case
func Search(text string, fields ...string) Cond {
	return Cond{Op: OpSearch, Value: text, Fields: fields}
}

// Asc and Desc build sort fields
func Asc(field string) SortField  { return SortField{Field: field} }
func Desc(field string) SortField { return SortField{Field: field, Desc: true} }

// compiled is a filter with values normalized to their JSON form
type compiled struct {
	conds []Cond
}

func compile(f Filter) (*compiled, error) {
	c := &compiled{conds: make([]Cond, 0, len(f))}
	for _, cond := range f {
		switch cond.Op {
		case OpSearch:
			s, ok := cond.Value.(string)
			if !ok {
				return nil, fmt.Errorf("search value must be a string")
			}
			cond.Value = strings.ToLower(s)
		case OpIn:
			vs, ok := cond.Value.([]any)
			if !ok {
				return nil, fmt.Errorf("in value must be a list")
			}
			norm := make([]any, len(vs))
			for i, v := range vs {
				n, err := normalize(v)
				if err != nil {
					return nil, err
				}
				norm[i] = n
			}
			cond.Value = norm
		case OpEq, OpNe, OpLt, OpLte, OpGt, OpGte, OpContains:
			n, err := normalize(cond.Value)
			if err != nil {
				return nil, err
			}
			cond.Value = n
		default:
			return nil, fmt.Errorf("unknown filter operator %q", cond.Op)
		}
		c.conds = append(c.conds, cond)
	}
	return c, nil
}

// normalize converts a Go value to what encoding/json would decode it to
func normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, float64, bool:
		return t, nil
	case time.Time:
		return t.Format(time.RFC3339Nano), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize filter value: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to normalize filter value: %w", err)
	}
	return out, nil
}

func (c *compiled) match(doc map[string]any) bool {
	for _, cond := range c.conds {
		if !matchCond(doc, cond) {
			return false
		}
	}
	return true
}

func matchCond(doc map[string]any, cond Cond) bool {
	if cond.Op == OpSearch {
		text := cond.Value.(string)
		if text == "" {
			return true
		}
		for _, f := range cond.Fields {
			if s, ok := lookup(doc, f).(string); ok && strings.Contains(strings.ToLower(s), text) {
				return true
			}
		}
		return false
	}

	v := lookup(doc, cond.Field)
	switch cond.Op {
	case OpEq:
		return compare(v, cond.Value) == 0
	case OpNe:
		return compare(v, cond.Value) != 0
	case OpIn:
		for _, want := range cond.Value.([]any) {
			if compare(v, want) == 0 {
				return true
			}
		}
		return false
	case OpContains:
		arr, ok := v.([]any)
		if !ok {
			return false
		}
		for _, item := range arr {
			if compare(item, cond.Value) == 0 {
				return true
			}
		}
		return false
	}

	// Range operators never match missing values
	if v == nil || cond.Value == nil {
		return false
	}
	r := compare(v, cond.Value)
	switch cond.Op {
	case OpLt:
		return r < 0
	case OpLte:
		return r <= 0
	case OpGt:
		return r > 0
	case OpGte:
		return r >= 0
	}
	return false
}

// lookup resolves a dotted field path
func lookup(doc map[string]any, field string) any {
	var cur any = doc
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

// compare orders two decoded JSON values. nil sorts first, strings that
// both parse as RFC 3339 timestamps compare chronologically.
func compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return typeOrder(a) - typeOrder(b)
		}
		if at, err := time.Parse(time.RFC3339Nano, av); err == nil {
			if bt, err := time.Parse(time.RFC3339Nano, bv); err == nil {
				return at.Compare(bt)
			}
		}
		return strings.Compare(av, bv)
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return typeOrder(a) - typeOrder(b)
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return typeOrder(a) - typeOrder(b)
		}
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		}
		return 1
	}

	// Arrays and objects only compare equal to themselves
	ad, _ := json.Marshal(a)
	bd, _ := json.Marshal(b)
	return strings.Compare(string(ad), string(bd))
}

func typeOrder(v any) int {
	switch v.(type) {
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	}
	return 4
}

type entry struct {
	id   string
	data []byte
	doc  map[string]any
}

// filterDocs decodes and matches documents. Input order is kept.
func filterDocs(docs []Document, f Filter) ([]entry, error) {
	c, err := compile(f)
	if err != nil {
		return nil, err
	}

	out := make([]entry, 0, len(docs))
	for _, d := range docs {
		var doc map[string]any
		if err := json.Unmarshal(d.Data, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", d.ID, err)
		}
		if c.match(doc) {
			out = append(out, entry{id: d.ID, data: d.Data, doc: doc})
		}
	}
	return out, nil
}

// runQuery filters, sorts and paginates documents.
// Without an explicit sort, results are ordered by id.
func runQuery(docs []Document, q Query) ([][]byte, error) {
	entries, err := filterDocs(docs, q.Filter)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		for _, s := range q.Sort {
			r := compare(lookup(entries[i].doc, s.Field), lookup(entries[j].doc, s.Field))
			if r == 0 {
				continue
			}
			if s.Desc {
				return r > 0
			}
			return r < 0
		}
		return entries[i].id < entries[j].id
	})

	if q.Skip > 0 {
		if q.Skip >= len(entries) {
			return [][]byte{}, nil
		}
		entries = entries[q.Skip:]
	}
	if q.Limit > 0 && len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}

	out := make([][]byte, len(entries))
	for i, e := range entries {
		if len(q.Fields) == 0 {
			out[i] = e.data
			continue
		}
		projected := make(map[string]any, len(q.Fields))
		for _, f := range q.Fields {
			if v, ok := e.doc[f]; ok {
				projected[f] = v
			}
		}
		data, err := json.Marshal(projected)
		if err != nil {
			return nil, fmt.Errorf("failed to project document: %w", err)
		}
		out[i] = data
	}
	return out, nil
}
