package sheetdb

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// defaultContent seeds a new document when no initial data is given.
const defaultContent = ",,,"

// Freshness selects whether OpenTable consults the cached worksheet list or
// refreshes it first.
type Freshness int

const (
	UseCache Freshness = iota
	ForceRefresh
)

// session is the shared context handed from a Database to its tables and
// rows. It is passed by value and never modified after construction.
type session struct {
	client *Client
	docID  string
	wsID   string
	fields []string
}

// Database represents one remote spreadsheet document.
//
// The worksheet list is a point-in-time snapshot: changes made by other
// sessions are only seen after RefreshTables or OpenTable with ForceRefresh.
// A Database is not safe for concurrent use.
type Database struct {
	client     *Client
	id         string
	doc        *Document
	worksheets []Worksheet
}

// NewDatabase returns an uninitialised Database; call Create or Open next.
func NewDatabase(client *Client) *Database {
	return &Database{client: client}
}

// ID returns the document identifier, or "" before Create or Open.
func (db *Database) ID() string {
	return db.id
}

// Title returns the document title from the last fetched metadata.
func (db *Database) Title() string {
	if db.doc == nil {
		return ""
	}
	return db.doc.Title
}

// Tables returns a copy of the cached worksheet list.
func (db *Database) Tables() []Worksheet {
	return append([]Worksheet(nil), db.worksheets...)
}

// Create uploads data as CSV into a new spreadsheet document called name.
// A nil data uploads an empty sheet.
func (db *Database) Create(ctx context.Context, name string, data io.Reader) error {
	if name == "" || !utf8.ValidString(name) {
		return &InvalidArgumentError{Argument: "name", Reason: "require textual, non-zero-length name"}
	}

	if db.id != "" {
		return &InvalidArgumentError{Argument: "database", Reason: fmt.Sprintf("already bound to %s", db.id)}
	}

	if data == nil {
		data = strings.NewReader(defaultContent)
	}

	content, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("failed to read initial data: %w", err)
	}

	doc, err := db.client.docs.Upload(ctx, Upload{
		Name:        name,
		Label:       "Spreadsheet",
		ContentType: "text/csv",
		Length:      int64(len(content)),
		Content:     bytes.NewReader(content),
	})
	if err != nil {
		return err
	}

	id := ExtractIdentifier(doc.ResourceURL, SpreadsheetPrefix)
	if id == "" {
		return fmt.Errorf("document %q has no identifier in %q", name, doc.ResourceURL)
	}

	db.id = id
	db.doc = doc

	db.client.logger.Info("created database", "name", name, "id", id)

	return db.RefreshTables(ctx)
}

// CreateFromString is Create with the initial CSV given as text.
func (db *Database) CreateFromString(ctx context.Context, name, data string) error {
	return db.Create(ctx, name, strings.NewReader(data))
}

// Open binds the Database to an existing document. The identifier format is
// not checked beyond what the remote service rejects.
func (db *Database) Open(ctx context.Context, id string) error {
	if id == "" {
		return &InvalidArgumentError{Argument: "id", Reason: "require non-empty document identifier"}
	}

	if db.id != "" {
		return &InvalidArgumentError{Argument: "database", Reason: fmt.Sprintf("already bound to %s", db.id)}
	}

	doc, err := db.client.docs.Document(ctx, id)
	if err != nil {
		return err
	}

	db.id = id
	db.doc = doc

	db.client.logger.Debug("opened database", "id", id, "title", doc.Title)

	return db.RefreshTables(ctx)
}

// RefreshTables replaces the cached worksheet list with the remote one.
func (db *Database) RefreshTables(ctx context.Context) error {
	if db.id == "" {
		return &NotInitializedError{Op: "refresh tables", Missing: "database"}
	}

	worksheets, err := db.client.sheets.Worksheets(ctx, db.id)
	if err != nil {
		return err
	}

	db.worksheets = worksheets
	return nil
}

// CreateTable adds a worksheet called name with fields as its header row.
func (db *Database) CreateTable(ctx context.Context, name string, fields []string) (*Table, error) {
	if db.id == "" {
		return nil, &NotInitializedError{Op: "create table", Missing: "database"}
	}

	t, err := createTable(ctx, db.session(), name, fields)
	if err != nil {
		return nil, err
	}

	if err := db.RefreshTables(ctx); err != nil {
		return nil, err
	}

	return t, nil
}

// OpenTable returns the first worksheet titled name. Tables found this way
// are schemaless: their field names are not read back from the header row.
func (db *Database) OpenTable(ctx context.Context, name string, freshness Freshness) (*Table, error) {
	if db.id == "" {
		return nil, &NotInitializedError{Op: "open table", Missing: "database"}
	}

	if freshness == ForceRefresh {
		if err := db.RefreshTables(ctx); err != nil {
			return nil, err
		}
	}

	for _, ws := range db.worksheets {
		if ws.Title == name {
			return openTable(db.session(), ws), nil
		}
	}

	return nil, &NotFoundError{Resource: "table", ID: name}
}

func (db *Database) session() session {
	return session{
		client: db.client,
		docID:  db.id,
	}
}
