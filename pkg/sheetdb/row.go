package sheetdb

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"strconv"
)

// Row is one data row of a table. It holds the remote entry it was read
// from; the entry's version is what Update checks against, so the local
// data can go stale without notice until an update or Refresh.
type Row struct {
	s     session
	entry *Entry
	data  map[string]string
}

func createRow(ctx context.Context, s session, values map[string]string) (*Row, error) {
	entry, err := s.client.sheets.InsertRow(ctx, s.docID, s.wsID, values)
	if err != nil {
		return nil, err
	}

	s.client.logger.Debug("inserted row", "table", s.wsID, "row", entry.Index)

	return &Row{
		s:     s,
		entry: entry,
		data:  maps.Clone(values),
	}, nil
}

func newRow(s session, e *Entry) *Row {
	return &Row{
		s:     s,
		entry: e,
		data:  maps.Clone(e.Values),
	}
}

// Data returns a copy of the row's field values.
func (r *Row) Data() map[string]string {
	return maps.Clone(r.data)
}

// Get returns the value of field, or "" when absent.
func (r *Row) Get(field string) string {
	return r.data[field]
}

// Index returns the 1-based data row position.
func (r *Row) Index() int {
	if r.entry == nil {
		return 0
	}
	return r.entry.Index
}

// Version returns the opaque version of the remote row this Row was read at.
func (r *Row) Version() string {
	if r.entry == nil {
		return ""
	}
	return r.entry.Version
}

// Update writes values to the remote row if it has not changed since this
// Row was obtained. Fields not in values keep their current value. A remote
// change in between yields a *ConflictError and leaves the Row untouched;
// call Refresh before retrying.
func (r *Row) Update(ctx context.Context, values map[string]interface{}) error {
	if r.entry == nil {
		return &NotInitializedError{Op: "update", Missing: "row"}
	}

	if len(values) == 0 {
		return &InvalidArgumentError{Argument: "values", Reason: "require at least one field"}
	}

	if err := r.s.checkFields(keys(values)...); err != nil {
		return err
	}

	text := toText(values)

	entry, err := r.s.client.sheets.UpdateRow(ctx, r.s.docID, r.s.wsID, r.entry, text)
	if err != nil {
		if code, ok := conflictStatus(err); ok {
			r.s.client.logger.Warn("row update conflict", "table", r.s.wsID, "row", r.entry.Index, "status", code)
			return &ConflictError{StatusCode: code, Row: r.entry.Index, Cause: err}
		}
		return err
	}

	r.entry = entry
	if r.data == nil {
		r.data = make(map[string]string, len(text))
	}
	for k, v := range text {
		r.data[k] = v
	}

	return nil
}

// Refresh re-reads the row from the remote table. The row is matched by its
// position, which blank rows above it do not shift.
func (r *Row) Refresh(ctx context.Context) error {
	if r.entry == nil {
		return &NotInitializedError{Op: "refresh", Missing: "row"}
	}

	entries, err := r.s.client.sheets.Query(ctx, r.s.docID, r.s.wsID, &ListQuery{})
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.Index == r.entry.Index {
			r.entry = e
			r.data = maps.Clone(e.Values)
			return nil
		}
	}

	return &NotFoundError{Resource: "row", ID: strconv.Itoa(r.entry.Index)}
}

// Scan copies the row into the struct pointed to by dest.
func (r *Row) Scan(dest interface{}) error {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("dest must be a non-nil pointer to a struct")
	}

	return scanRow(r.data, v)
}
