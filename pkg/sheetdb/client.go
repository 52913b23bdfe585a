// Package sheetdb provides a database-like interface over Google Drive and
// Google Sheets. A Database is a spreadsheet document, a Table is one of its
// worksheets with a header row of field names, and a Row is one data row.
package sheetdb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const defaultHTTPTimeout = 30 * time.Second

// Document is the metadata of one remote spreadsheet document.
type Document struct {
	ResourceURL string
	Title       string
	MimeType    string
}

// Worksheet is one sheet within a document.
type Worksheet struct {
	ResourceURL string
	Title       string
	RowCount    int
	ColumnCount int
}

// Entry is a single data row as returned by a SpreadsheetService. Index is
// the 1-based position among the data rows (header excluded) and Version
// changes whenever the remote row content changes.
type Entry struct {
	Index   int
	Values  map[string]string
	Version string
}

// Upload describes new document content.
type Upload struct {
	Name        string
	Label       string
	ContentType string
	Length      int64
	Content     io.Reader
}

// DocumentService defines the document-management operations.
type DocumentService interface {
	Upload(ctx context.Context, upload Upload) (*Document, error)
	Document(ctx context.Context, id string) (*Document, error)
}

// SpreadsheetService defines the worksheet, cell and row operations.
// Worksheet ids are the identifiers extracted from Worksheet.ResourceURL.
// UpdateRow must reject an entry whose Version no longer matches the remote
// row with a *googleapi.Error carrying http.StatusConflict.
type SpreadsheetService interface {
	Worksheets(ctx context.Context, docID string) ([]Worksheet, error)
	AddWorksheet(ctx context.Context, docID, title string, rows, cols int) (*Worksheet, error)
	UpdateCell(ctx context.Context, docID, wsID string, row, col int, value string) error
	Query(ctx context.Context, docID, wsID string, q *ListQuery) ([]*Entry, error)
	InsertRow(ctx context.Context, docID, wsID string, values map[string]string) (*Entry, error)
	UpdateRow(ctx context.Context, docID, wsID string, entry *Entry, values map[string]string) (*Entry, error)
}

// Config holds client configuration.
type Config struct {
	Credentials   []byte // Service account JSON
	Identity      string // Optional user to impersonate
	ClientOptions []option.ClientOption
	Logger        *slog.Logger
	EnforceSchema bool
}

// Client holds the two authenticated service handles shared by every
// Database, Table and Row created from it.
type Client struct {
	docs          DocumentService
	sheets        SpreadsheetService
	logger        *slog.Logger
	enforceSchema bool
}

// Option configures a Client built by NewClientWithServices.
type Option func(*Client)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSchemaEnforcement validates field names against the known columns of
// created tables.
func WithSchemaEnforcement(enabled bool) Option {
	return func(c *Client) {
		c.enforceSchema = enabled
	}
}

// NewClient authenticates once and creates the Drive and Sheets handles.
// Authentication failures are returned unchanged.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if len(cfg.Credentials) == 0 && len(cfg.ClientOptions) == 0 {
		return nil, fmt.Errorf("credentials are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := append([]option.ClientOption{}, cfg.ClientOptions...)
	if len(cfg.Credentials) > 0 {
		ts, err := tokenSource(ctx, cfg.Credentials, cfg.Identity)
		if err != nil {
			logger.Error("authentication failed", "identity", cfg.Identity, "error", err)
			return nil, err
		}
		opts = append(opts, option.WithTokenSource(ts))
	}

	docs, err := newDriveDocuments(ctx, logger, opts...)
	if err != nil {
		return nil, err
	}

	spreadsheets, err := newSheetsSpreadsheets(ctx, logger, opts...)
	if err != nil {
		return nil, err
	}

	return NewClientWithServices(docs, spreadsheets,
		WithLogger(logger),
		WithSchemaEnforcement(cfg.EnforceSchema),
	), nil
}

// NewClientWithServices builds a Client over caller-supplied collaborators.
func NewClientWithServices(docs DocumentService, spreadsheets SpreadsheetService, opts ...Option) *Client {
	c := &Client{
		docs:   docs,
		sheets: spreadsheets,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Documents returns the document-management handle.
func (c *Client) Documents() DocumentService {
	return c.docs
}

// Spreadsheets returns the worksheet and row handle.
func (c *Client) Spreadsheets() SpreadsheetService {
	return c.sheets
}

func tokenSource(ctx context.Context, credentials []byte, identity string) (oauth2.TokenSource, error) {
	conf, err := google.JWTConfigFromJSON(credentials, drive.DriveScope, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, err
	}
	conf.Subject = identity

	// Ensure token exchanges don't hang forever.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: defaultHTTPTimeout})

	ts := conf.TokenSource(ctx)
	if _, err := ts.Token(); err != nil {
		return nil, err
	}

	return ts, nil
}
