package sheetdb

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name          string
		cfg           Config
		expectedError string
	}{
		{
			name:          "missing credentials",
			cfg:           Config{Credentials: nil},
			expectedError: "credentials are required",
		},
		{
			name:          "empty credentials",
			cfg:           Config{Credentials: []byte{}},
			expectedError: "credentials are required",
		},
		{
			name: "invalid credentials",
			cfg:  Config{Credentials: []byte(`invalid json`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(context.Background(), tt.cfg)

			if err == nil {
				t.Fatal("NewClient() expected error but got nil")
			}
			if client != nil {
				t.Error("NewClient() returned a client on error")
			}
			if tt.expectedError != "" && err.Error() != tt.expectedError {
				t.Errorf("NewClient() error = %v, want %v", err.Error(), tt.expectedError)
			}
		})
	}
}

func TestNewClientWithServices(t *testing.T) {
	docs := newMockDocuments("doc-1")
	sheets := NewMockSpreadsheets()

	client := newTestClient(docs, sheets, WithSchemaEnforcement(true))

	if client.Documents() != docs {
		t.Error("Documents() handle mismatch")
	}
	if client.Spreadsheets() != sheets {
		t.Error("Spreadsheets() handle mismatch")
	}
	if !client.enforceSchema {
		t.Error("WithSchemaEnforcement(true) not applied")
	}
	if client.logger == nil {
		t.Error("client logger is nil")
	}
}

func TestDatabase_Create(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		dbName  string
		data    string
		nilData bool
		wantErr bool
		content string
	}{
		{name: "empty name", dbName: "", wantErr: true},
		{name: "whitespace name", dbName: "   ", nilData: true, content: ",,,"},
		{name: "invalid utf8 name", dbName: "\xff\xfe", wantErr: true},
		{name: "default content", dbName: "Test Application", nilData: true, content: ",,,"},
		{name: "csv content", dbName: "Test Application", data: "uid,username\n1,user1\n", content: "uid,username\n1,user1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs := newMockDocuments("abc123")
			sheets := NewMockSpreadsheets()
			db := NewDatabase(newTestClient(docs, sheets))

			var err error
			if tt.nilData {
				err = db.Create(ctx, tt.dbName, nil)
			} else {
				err = db.CreateFromString(ctx, tt.dbName, tt.data)
			}

			if tt.wantErr {
				if !IsInvalidArgumentError(err) {
					t.Fatalf("Create() error = %v, want InvalidArgumentError", err)
				}
				if len(docs.UploadCalls) != 0 {
					t.Error("Create() made a remote call for an invalid name")
				}
				if db.ID() != "" {
					t.Errorf("Create() set id %q on failure", db.ID())
				}
				return
			}

			if err != nil {
				t.Fatalf("Create() unexpected error = %v", err)
			}

			if db.ID() != "abc123" {
				t.Errorf("Create() id = %v, want abc123", db.ID())
			}

			if len(docs.UploadCalls) != 1 {
				t.Fatalf("Create() expected 1 upload, got %d", len(docs.UploadCalls))
			}

			call := docs.UploadCalls[0]
			if call.Upload.ContentType != "text/csv" || call.Upload.Label != "Spreadsheet" {
				t.Errorf("Create() upload = %+v, want text/csv Spreadsheet", call.Upload)
			}
			if call.Content != tt.content || call.Upload.Length != int64(len(tt.content)) {
				t.Errorf("Create() uploaded %q (%d bytes), want %q", call.Content, call.Upload.Length, tt.content)
			}

			if sheets.Calls["Worksheets"] != 1 {
				t.Errorf("Create() should refresh tables once, got %d", sheets.Calls["Worksheets"])
			}
		})
	}
}

func TestDatabase_CreateTwice(t *testing.T) {
	ctx := context.Background()
	db := NewDatabase(newTestClient(newMockDocuments("abc123"), NewMockSpreadsheets()))

	if err := db.Create(ctx, "first", nil); err != nil {
		t.Fatalf("Create() unexpected error = %v", err)
	}

	if err := db.Create(ctx, "second", nil); !IsInvalidArgumentError(err) {
		t.Errorf("second Create() error = %v, want InvalidArgumentError", err)
	}
}

func TestDatabase_CreateUploadError(t *testing.T) {
	uploadErr := errors.New("quota exceeded")
	docs := &MockDocuments{
		UploadFunc: func(ctx context.Context, upload Upload) (*Document, error) {
			return nil, uploadErr
		},
	}
	db := NewDatabase(newTestClient(docs, NewMockSpreadsheets()))

	err := db.Create(context.Background(), "Test Application", nil)
	if err != uploadErr {
		t.Errorf("Create() error = %v, want the upload error unchanged", err)
	}
	if db.ID() != "" {
		t.Error("Create() set id after a failed upload")
	}
}

func TestDatabase_Open(t *testing.T) {
	ctx := context.Background()
	docs := newMockDocuments("unused")
	sheets := NewMockSpreadsheets()
	db := NewDatabase(newTestClient(docs, sheets))

	if err := db.Open(ctx, ""); !IsInvalidArgumentError(err) {
		t.Errorf("Open(\"\") error = %v, want InvalidArgumentError", err)
	}

	if err := db.Open(ctx, "existing"); err != nil {
		t.Fatalf("Open() unexpected error = %v", err)
	}

	if db.ID() != "existing" {
		t.Errorf("Open() id = %v, want existing", db.ID())
	}
	if db.Title() != "Test Application" {
		t.Errorf("Open() title = %v, want Test Application", db.Title())
	}
	if len(docs.DocumentCalls) != 1 || docs.DocumentCalls[0] != "existing" {
		t.Errorf("Open() document calls = %v", docs.DocumentCalls)
	}
	if sheets.Calls["Worksheets"] != 1 {
		t.Errorf("Open() should refresh tables, got %d calls", sheets.Calls["Worksheets"])
	}
}

func TestDatabase_NotInitialized(t *testing.T) {
	ctx := context.Background()
	sheets := NewMockSpreadsheets()
	db := NewDatabase(newTestClient(newMockDocuments("abc"), sheets))

	if err := db.Create(ctx, "", nil); !IsInvalidArgumentError(err) {
		t.Fatalf("Create(\"\") error = %v, want InvalidArgumentError", err)
	}

	tests := []struct {
		name string
		fn   func() error
	}{
		{"refresh tables", func() error { return db.RefreshTables(ctx) }},
		{"create table", func() error {
			_, err := db.CreateTable(ctx, "user", []string{"uid", "username", "password"})
			return err
		}},
		{"open table", func() error {
			_, err := db.OpenTable(ctx, "user", UseCache)
			return err
		}},
		{"open table refreshed", func() error {
			_, err := db.OpenTable(ctx, "user", ForceRefresh)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !IsNotInitializedError(err) {
				t.Errorf("%s error = %v, want NotInitializedError", tt.name, err)
			}
		})
	}

	if len(sheets.Calls) != 0 {
		t.Errorf("uninitialised database made remote calls: %v", sheets.Calls)
	}
}

func TestDatabase_OpenTable(t *testing.T) {
	ctx := context.Background()
	sheets := NewMockSpreadsheets()
	client := newTestClient(newMockDocuments("doc"), sheets)

	db := NewDatabase(client)
	if err := db.Open(ctx, "doc"); err != nil {
		t.Fatalf("Open() unexpected error = %v", err)
	}

	created, err := db.CreateTable(ctx, "user", []string{"uid", "username", "password"})
	if err != nil {
		t.Fatalf("CreateTable() unexpected error = %v", err)
	}

	opened, err := db.OpenTable(ctx, "user", UseCache)
	if err != nil {
		t.Fatalf("OpenTable() unexpected error = %v", err)
	}

	if opened.ID() != created.ID() {
		t.Errorf("OpenTable() id = %v, want %v", opened.ID(), created.ID())
	}
	if !opened.Schemaless() || opened.Fields() != nil {
		t.Error("OpenTable() should return a schemaless table")
	}
	if created.Schemaless() {
		t.Error("CreateTable() should return a table with known fields")
	}

	if _, err := db.OpenTable(ctx, "missing", UseCache); !IsNotFoundError(err) {
		t.Errorf("OpenTable(missing) error = %v, want NotFoundError", err)
	}
}

func TestDatabase_OpenTableFreshness(t *testing.T) {
	ctx := context.Background()
	sheets := NewMockSpreadsheets()
	client := newTestClient(newMockDocuments("doc"), sheets)

	first := NewDatabase(client)
	second := NewDatabase(client)
	if err := first.Open(ctx, "doc"); err != nil {
		t.Fatalf("Open() unexpected error = %v", err)
	}
	if err := second.Open(ctx, "doc"); err != nil {
		t.Fatalf("Open() unexpected error = %v", err)
	}

	created, err := first.CreateTable(ctx, "user", []string{"uid"})
	if err != nil {
		t.Fatalf("CreateTable() unexpected error = %v", err)
	}

	if _, err := second.OpenTable(ctx, "user", UseCache); !IsNotFoundError(err) {
		t.Errorf("OpenTable(UseCache) on a stale cache error = %v, want NotFoundError", err)
	}

	opened, err := second.OpenTable(ctx, "user", ForceRefresh)
	if err != nil {
		t.Fatalf("OpenTable(ForceRefresh) unexpected error = %v", err)
	}
	if opened.ID() != created.ID() {
		t.Errorf("OpenTable(ForceRefresh) id = %v, want %v", opened.ID(), created.ID())
	}
}

func TestDatabase_OpenTableDuplicateTitles(t *testing.T) {
	ctx := context.Background()
	sheets := NewMockSpreadsheets()
	db := NewDatabase(newTestClient(newMockDocuments("doc"), sheets))
	if err := db.Open(ctx, "doc"); err != nil {
		t.Fatalf("Open() unexpected error = %v", err)
	}

	first, _ := sheets.AddWorksheet(ctx, "doc", "dup", 1, 1)
	_, _ = sheets.AddWorksheet(ctx, "doc", "dup", 1, 1)

	opened, err := db.OpenTable(ctx, "dup", ForceRefresh)
	if err != nil {
		t.Fatalf("OpenTable() unexpected error = %v", err)
	}

	if opened.ID() != ExtractIdentifier(first.ResourceURL, "") {
		t.Errorf("OpenTable() id = %v, want the first match", opened.ID())
	}
}

func TestDatabase_Tables(t *testing.T) {
	ctx := context.Background()
	db := NewDatabase(newTestClient(newMockDocuments("doc"), NewMockSpreadsheets()))
	if err := db.Open(ctx, "doc"); err != nil {
		t.Fatalf("Open() unexpected error = %v", err)
	}

	if len(db.Tables()) != 0 {
		t.Fatalf("Tables() = %v, want empty", db.Tables())
	}

	if _, err := db.CreateTable(ctx, "user", []string{"uid"}); err != nil {
		t.Fatalf("CreateTable() unexpected error = %v", err)
	}

	tables := db.Tables()
	if len(tables) != 1 || tables[0].Title != "user" {
		t.Fatalf("Tables() = %v, want [user]", tables)
	}

	tables[0].Title = "changed"
	if db.Tables()[0].Title != "user" {
		t.Error("Tables() should return a copy")
	}

	if !strings.HasSuffix(tables[0].ResourceURL, "/sheets/1") {
		t.Errorf("Tables() resource = %v", tables[0].ResourceURL)
	}
}
