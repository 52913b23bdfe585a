package sheetdb

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Table represents a worksheet within the document.
type Table struct {
	s         session
	worksheet Worksheet
}

// FilterOption adjusts the ordering of Filter results.
type FilterOption func(*ListQuery)

// OrderBy sorts results by field, numerically when both values are numbers.
func OrderBy(field string) FilterOption {
	return func(q *ListQuery) {
		q.OrderBy = field
	}
}

// Reverse inverts the sort direction.
func Reverse() FilterOption {
	return func(q *ListQuery) {
		q.Reverse = true
	}
}

func createTable(ctx context.Context, s session, name string, fields []string) (*Table, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &InvalidArgumentError{Argument: "table name", Reason: "require non-empty name"}
	}

	if err := validateFields(fields); err != nil {
		return nil, err
	}

	ws, err := s.client.sheets.AddWorksheet(ctx, s.docID, name, 1, len(fields))
	if err != nil {
		return nil, err
	}

	s.wsID = ExtractIdentifier(ws.ResourceURL, "")
	s.fields = slices.Clone(fields)

	// One call per header cell; a failure part way leaves a partial header.
	for i, field := range fields {
		if err := s.client.sheets.UpdateCell(ctx, s.docID, s.wsID, 1, i+1, field); err != nil {
			s.client.logger.Error("failed to write header", "table", name, "field", field, "error", err)
			return nil, err
		}
	}

	s.client.logger.Info("created table", "database", s.docID, "table", name, "id", s.wsID, "fields", fields)

	return &Table{s: s, worksheet: *ws}, nil
}

func openTable(s session, ws Worksheet) *Table {
	s.wsID = ExtractIdentifier(ws.ResourceURL, "")
	return &Table{s: s, worksheet: ws}
}

func validateFields(fields []string) error {
	if len(fields) == 0 {
		return &InvalidArgumentError{Argument: "fields", Reason: "require at least one field"}
	}

	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			return &InvalidArgumentError{Argument: "fields", Reason: "field names must be non-empty"}
		}
		if seen[f] {
			return &InvalidArgumentError{Argument: "fields", Reason: fmt.Sprintf("duplicate field %q", f)}
		}
		seen[f] = true
	}
	return nil
}

// ID returns the worksheet identifier.
func (t *Table) ID() string {
	return t.s.wsID
}

// Title returns the worksheet title.
func (t *Table) Title() string {
	return t.worksheet.Title
}

// Fields returns the column names the table was created with, or nil for a
// table found through Database.OpenTable.
func (t *Table) Fields() []string {
	return slices.Clone(t.s.fields)
}

// Schemaless reports whether the table's columns are unknown locally.
func (t *Table) Schemaless() bool {
	return t.s.fields == nil
}

// InsertInto adds a row. Values are converted to text before submission.
func (t *Table) InsertInto(ctx context.Context, values map[string]interface{}) (*Row, error) {
	if t.s.wsID == "" {
		return nil, &NotInitializedError{Op: "insert", Missing: "table"}
	}

	if len(values) == 0 {
		return nil, &InvalidArgumentError{Argument: "values", Reason: "require at least one field"}
	}

	if err := t.s.checkFields(keys(values)...); err != nil {
		return nil, err
	}

	return createRow(ctx, t.s, toText(values))
}

// InsertRecord adds a row built from the fields of a struct.
func (t *Table) InsertRecord(ctx context.Context, record interface{}) (*Row, error) {
	values, err := structToFields(record)
	if err != nil {
		return nil, &InvalidArgumentError{Argument: "record", Reason: err.Error()}
	}

	return t.InsertInto(ctx, values)
}

// GetRow returns the n-th data row, counting from 1 and excluding the header
// and blank rows.
func (t *Table) GetRow(ctx context.Context, n int) (*Row, error) {
	if n < 1 {
		return nil, &InvalidArgumentError{Argument: "row number", Reason: "must be 1 or greater"}
	}

	rows, err := t.query(ctx, "get row", &ListQuery{StartIndex: n, MaxResults: 1})
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, &NotFoundError{Resource: "row", ID: strconv.Itoa(n)}
	}

	return rows[0], nil
}

// Filter returns the rows whose fields equal every value in criteria. An
// empty criteria matches all rows. Results are limited to what the remote
// service returns in one read.
func (t *Table) Filter(ctx context.Context, criteria map[string]interface{}, opts ...FilterOption) ([]*Row, error) {
	q := &ListQuery{}

	for _, field := range keys(criteria) {
		q.Filters = append(q.Filters, Filter{
			Column:   field,
			Operator: "=",
			Value:    textValue(criteria[field]),
		})
	}

	for _, opt := range opts {
		opt(q)
	}

	return t.query(ctx, "filter", q)
}

// GetRandom returns a row chosen uniformly at random from all data rows.
func (t *Table) GetRandom(ctx context.Context) (*Row, error) {
	rows, err := t.query(ctx, "get random", &ListQuery{})
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, &NotFoundError{Resource: "row", ID: "random"}
	}

	return rows[rand.IntN(len(rows))], nil
}

// UpdateWhere applies values to every row matching criteria and returns how
// many rows were written. Rows are updated one at a time; the first failure,
// a *ConflictError included, stops the loop and is returned with the count
// written so far. Nothing is retried.
func (t *Table) UpdateWhere(ctx context.Context, criteria, values map[string]interface{}) (int, error) {
	if len(values) == 0 {
		return 0, &InvalidArgumentError{Argument: "values", Reason: "require at least one field"}
	}

	rows, err := t.Filter(ctx, criteria)
	if err != nil {
		return 0, err
	}

	for i, row := range rows {
		if err := row.Update(ctx, values); err != nil {
			return i, err
		}
	}

	t.s.client.logger.Debug("updated rows", "table", t.s.wsID, "count", len(rows))

	return len(rows), nil
}

// Query builds a query for the table.
func (t *Table) Query() *Query {
	return &Query{
		table: t,
	}
}

func (t *Table) query(ctx context.Context, op string, q *ListQuery) ([]*Row, error) {
	if t.s.wsID == "" {
		return nil, &NotInitializedError{Op: op, Missing: "table"}
	}

	if err := t.s.checkFields(q.columns()...); err != nil {
		return nil, err
	}

	entries, err := t.s.client.sheets.Query(ctx, t.s.docID, t.s.wsID, q)
	if err != nil {
		return nil, err
	}

	rows := make([]*Row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, newRow(t.s, e))
	}
	return rows, nil
}

// checkFields rejects names outside the known columns when schema
// enforcement is enabled. Schemaless tables accept anything.
func (s session) checkFields(names ...string) error {
	if !s.client.enforceSchema || s.fields == nil {
		return nil
	}

	for _, name := range names {
		if !slices.Contains(s.fields, name) {
			return &InvalidArgumentError{Argument: "field", Reason: fmt.Sprintf("unknown field %q", name)}
		}
	}
	return nil
}

func keys[V any](m map[string]V) []string {
	result := make([]string, 0, len(m))
	for k := range m {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}
