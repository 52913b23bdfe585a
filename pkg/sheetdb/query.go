package sheetdb

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Filter represents a WHERE condition.
type Filter struct {
	Column   string
	Operator string
	Value    interface{}
}

// ListQuery is the structured row query handed to a SpreadsheetService.
// Filters are combined with AND. StartIndex is 1-based and, like
// MaxResults, applies after filtering and ordering; zero means unset.
type ListQuery struct {
	StartIndex int
	MaxResults int
	Filters    []Filter
	OrderBy    string
	Reverse    bool
}

// Apply filters, orders and pages entries. The input slice is not modified.
func (q *ListQuery) Apply(entries []*Entry) []*Entry {
	if q == nil {
		return entries
	}

	result := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if q.matches(e) {
			result = append(result, e)
		}
	}

	if q.OrderBy != "" {
		column := q.OrderBy
		sort.SliceStable(result, func(i, j int) bool {
			c := compareValues(result[i].Values[column], result[j].Values[column])
			if q.Reverse {
				return c > 0
			}
			return c < 0
		})
	} else if q.Reverse {
		for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
			result[i], result[j] = result[j], result[i]
		}
	}

	if q.StartIndex > 1 {
		if q.StartIndex > len(result) {
			return nil
		}
		result = result[q.StartIndex-1:]
	}

	if q.MaxResults > 0 && q.MaxResults < len(result) {
		result = result[:q.MaxResults]
	}

	return result
}

func (q *ListQuery) matches(e *Entry) bool {
	for _, f := range q.Filters {
		cell, ok := e.Values[f.Column]
		if !ok {
			return false
		}

		if !matchesOperator(cell, f.Operator, f.Value) {
			return false
		}
	}
	return true
}

func (q *ListQuery) columns() []string {
	columns := make([]string, 0, len(q.Filters)+1)
	for _, f := range q.Filters {
		columns = append(columns, f.Column)
	}
	if q.OrderBy != "" {
		columns = append(columns, q.OrderBy)
	}
	return columns
}

func matchesOperator(cell interface{}, op string, value interface{}) bool {
	cellStr := fmt.Sprintf("%v", cell)
	valueStr := fmt.Sprintf("%v", value)

	switch op {
	case "=", "==":
		return cellStr == valueStr
	case "!=":
		return cellStr != valueStr
	case ">":
		return compareValues(cell, value) > 0
	case ">=":
		return compareValues(cell, value) >= 0
	case "<":
		return compareValues(cell, value) < 0
	case "<=":
		return compareValues(cell, value) <= 0
	case "contains", "like":
		return strings.Contains(strings.ToLower(cellStr), strings.ToLower(valueStr))
	default:
		return false
	}
}

func compareValues(a, b interface{}) int {
	aStr := fmt.Sprintf("%v", a)
	bStr := fmt.Sprintf("%v", b)

	// Try numeric comparison
	aNum, aErr := strconv.ParseFloat(aStr, 64)
	bNum, bErr := strconv.ParseFloat(bStr, 64)

	if aErr == nil && bErr == nil {
		if aNum < bNum {
			return -1
		}
		if aNum > bNum {
			return 1
		}
		return 0
	}

	return strings.Compare(aStr, bStr)
}

// Query provides a fluent interface for building queries.
type Query struct {
	table      *Table
	filters    []Filter
	limit      int
	offset     int
	orderBy    string
	descending bool
}

// Where adds a filter condition.
func (q *Query) Where(column, operator string, value interface{}) *Query {
	q.filters = append(q.filters, Filter{
		Column:   column,
		Operator: operator,
		Value:    value,
	})
	return q
}

// Limit sets the maximum number of results.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// Offset skips the first n matching rows.
func (q *Query) Offset(n int) *Query {
	q.offset = n
	return q
}

// OrderBy sets the sort column and direction.
func (q *Query) OrderBy(column string, descending bool) *Query {
	q.orderBy = column
	q.descending = descending
	return q
}

// Rows executes the query and returns the matching rows in order.
func (q *Query) Rows(ctx context.Context) ([]*Row, error) {
	lq := &ListQuery{
		MaxResults: q.limit,
		Filters:    q.filters,
		OrderBy:    q.orderBy,
		Reverse:    q.descending,
	}
	if q.offset > 0 {
		lq.StartIndex = q.offset + 1
	}

	return q.table.query(ctx, "query", lq)
}

// Get executes the query and scans results into the provided slice of structs.
func (q *Query) Get(ctx context.Context, dest interface{}) error {
	rows, err := q.Rows(ctx)
	if err != nil {
		return err
	}

	return scanIntoSlice(rows, dest)
}
