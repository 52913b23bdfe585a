package sheetdb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"google.golang.org/api/googleapi"
)

type MockDocuments struct {
	UploadFunc   func(ctx context.Context, upload Upload) (*Document, error)
	DocumentFunc func(ctx context.Context, id string) (*Document, error)

	UploadCalls   []UploadCall
	DocumentCalls []string
}

type UploadCall struct {
	Upload  Upload
	Content string
}

func (m *MockDocuments) Upload(ctx context.Context, upload Upload) (*Document, error) {
	content, _ := io.ReadAll(upload.Content)
	m.UploadCalls = append(m.UploadCalls, UploadCall{Upload: upload, Content: string(content)})
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, upload)
	}
	return nil, fmt.Errorf("Upload not implemented")
}

func (m *MockDocuments) Document(ctx context.Context, id string) (*Document, error) {
	m.DocumentCalls = append(m.DocumentCalls, id)
	if m.DocumentFunc != nil {
		return m.DocumentFunc(ctx, id)
	}
	return nil, fmt.Errorf("Document not implemented")
}

// newMockDocuments returns documents that upload to and open docID.
func newMockDocuments(docID string) *MockDocuments {
	return &MockDocuments{
		UploadFunc: func(ctx context.Context, upload Upload) (*Document, error) {
			return &Document{ResourceURL: documentResourceURL(docID), Title: upload.Name}, nil
		},
		DocumentFunc: func(ctx context.Context, id string) (*Document, error) {
			return &Document{ResourceURL: documentResourceURL(id), Title: "Test Application"}, nil
		},
	}
}

type mockSheet struct {
	id       int64
	title    string
	rows     [][]string
	versions []int
}

// MockSpreadsheets is an in-memory SpreadsheetService. Each row's version is
// a counter bumped by every UpdateRow, so any write through UpdateRow makes
// older handles stale. Cells changed through UpdateCell do not bump it.
type MockSpreadsheets struct {
	docs   map[string][]*mockSheet
	nextID int64

	Errors          map[string]error
	UpdateCellErrAt int

	Calls   map[string]int
	Queries []ListQuery
}

func NewMockSpreadsheets() *MockSpreadsheets {
	return &MockSpreadsheets{
		docs:   map[string][]*mockSheet{},
		Errors: map[string]error{},
		Calls:  map[string]int{},
	}
}

func (m *MockSpreadsheets) call(name string) error {
	m.Calls[name]++
	return m.Errors[name]
}

func (m *MockSpreadsheets) sheet(docID, wsID string) (*mockSheet, error) {
	for _, s := range m.docs[docID] {
		if strconv.FormatInt(s.id, 10) == wsID {
			return s, nil
		}
	}
	return nil, &NotFoundError{Resource: "worksheet", ID: wsID}
}

func (m *MockSpreadsheets) Worksheets(ctx context.Context, docID string) ([]Worksheet, error) {
	if err := m.call("Worksheets"); err != nil {
		return nil, err
	}

	var worksheets []Worksheet
	for _, s := range m.docs[docID] {
		worksheets = append(worksheets, Worksheet{
			ResourceURL: worksheetResourceURL(docID, s.id),
			Title:       s.title,
			RowCount:    len(s.rows),
			ColumnCount: len(s.rows[0]),
		})
	}
	return worksheets, nil
}

func (m *MockSpreadsheets) AddWorksheet(ctx context.Context, docID, title string, rows, cols int) (*Worksheet, error) {
	if err := m.call("AddWorksheet"); err != nil {
		return nil, err
	}

	m.nextID++
	s := &mockSheet{id: m.nextID, title: title, rows: [][]string{make([]string, cols)}}
	m.docs[docID] = append(m.docs[docID], s)

	return &Worksheet{
		ResourceURL: worksheetResourceURL(docID, s.id),
		Title:       title,
		RowCount:    rows,
		ColumnCount: cols,
	}, nil
}

func (m *MockSpreadsheets) UpdateCell(ctx context.Context, docID, wsID string, row, col int, value string) error {
	if err := m.call("UpdateCell"); err != nil {
		return err
	}
	if m.UpdateCellErrAt > 0 && m.Calls["UpdateCell"] == m.UpdateCellErrAt {
		return &googleapi.Error{Code: http.StatusInternalServerError, Message: "backend error"}
	}

	s, err := m.sheet(docID, wsID)
	if err != nil {
		return err
	}

	for len(s.rows) < row {
		s.rows = append(s.rows, make([]string, len(s.rows[0])))
		s.versions = append(s.versions, 1)
	}
	for len(s.rows[row-1]) < col {
		s.rows[row-1] = append(s.rows[row-1], "")
	}
	s.rows[row-1][col-1] = value
	return nil
}

func (m *MockSpreadsheets) Query(ctx context.Context, docID, wsID string, q *ListQuery) ([]*Entry, error) {
	if err := m.call("Query"); err != nil {
		return nil, err
	}
	m.Queries = append(m.Queries, *q)

	s, err := m.sheet(docID, wsID)
	if err != nil {
		return nil, err
	}

	return q.Apply(s.entries()), nil
}

func (m *MockSpreadsheets) InsertRow(ctx context.Context, docID, wsID string, values map[string]string) (*Entry, error) {
	if err := m.call("InsertRow"); err != nil {
		return nil, err
	}

	s, err := m.sheet(docID, wsID)
	if err != nil {
		return nil, err
	}

	_, full, err := rowValues(s.rows[0], nil, values)
	if err != nil {
		return nil, err
	}

	s.rows = append(s.rows, s.layout(full))
	s.versions = append(s.versions, 1)

	return s.entry(len(s.rows) - 1), nil
}

func (m *MockSpreadsheets) UpdateRow(ctx context.Context, docID, wsID string, entry *Entry, values map[string]string) (*Entry, error) {
	if err := m.call("UpdateRow"); err != nil {
		return nil, err
	}

	s, err := m.sheet(docID, wsID)
	if err != nil {
		return nil, err
	}

	if entry.Index < 1 || entry.Index >= len(s.rows) {
		return nil, &NotFoundError{Resource: "row", ID: strconv.Itoa(entry.Index)}
	}

	current := s.entry(entry.Index)
	if current.Version != entry.Version {
		return nil, &googleapi.Error{Code: http.StatusConflict, Message: "version mismatch"}
	}

	_, full, err := rowValues(s.rows[0], current.Values, values)
	if err != nil {
		return nil, err
	}

	s.rows[entry.Index] = s.layout(full)
	s.versions[entry.Index-1]++

	return s.entry(entry.Index), nil
}

func (s *mockSheet) layout(values map[string]string) []string {
	row := make([]string, len(s.rows[0]))
	for i, h := range s.rows[0] {
		row[i] = values[h]
	}
	return row
}

func (s *mockSheet) entry(index int) *Entry {
	values := map[string]string{}
	for i, h := range s.rows[0] {
		if h != "" && i < len(s.rows[index]) {
			values[h] = s.rows[index][i]
		}
	}
	return &Entry{
		Index:   index,
		Values:  values,
		Version: strconv.Itoa(s.versions[index-1]),
	}
}

func (s *mockSheet) entries() []*Entry {
	var entries []*Entry
	for i := 1; i < len(s.rows); i++ {
		entries = append(entries, s.entry(i))
	}
	return entries
}

func newTestClient(docs DocumentService, sheets SpreadsheetService, opts ...Option) *Client {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return NewClientWithServices(docs, sheets, opts...)
}
