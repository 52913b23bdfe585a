package sheetdb

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// revisionKey tags the row-level developer metadata counting writes made
// through UpdateRow.
const revisionKey = "sheetdb.revision"

type rowRevision struct {
	metadataID int64
	count      int64
}

var labelMimeTypes = map[string]string{
	"Spreadsheet": "application/vnd.google-apps.spreadsheet",
	"Document":    "application/vnd.google-apps.document",
}

type driveDocuments struct {
	srv    *drive.Service
	logger *slog.Logger
}

func newDriveDocuments(ctx context.Context, logger *slog.Logger, opts ...option.ClientOption) (*driveDocuments, error) {
	logger.Debug("creating drive service")

	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		logger.Error("failed to create drive service", "error", err)
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &driveDocuments{srv: srv, logger: logger}, nil
}

func (d *driveDocuments) Upload(ctx context.Context, upload Upload) (*Document, error) {
	mimeType, ok := labelMimeTypes[upload.Label]
	if !ok {
		return nil, fmt.Errorf("unsupported document label %q", upload.Label)
	}

	d.logger.Debug("uploading document", "name", upload.Name, "label", upload.Label, "bytes", upload.Length)

	meta := &drive.File{
		Name:     upload.Name,
		MimeType: mimeType,
	}

	created, err := d.srv.Files.Create(meta).
		Media(upload.Content, googleapi.ContentType(upload.ContentType)).
		Fields("id, name, mimeType").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", upload.Name, err)
	}

	return driveDocument(created), nil
}

func (d *driveDocuments) Document(ctx context.Context, id string) (*Document, error) {
	f, err := d.srv.Files.Get(id).
		Fields("id, name, mimeType").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}

	return driveDocument(f), nil
}

func driveDocument(f *drive.File) *Document {
	return &Document{
		ResourceURL: documentResourceURL(f.Id),
		Title:       f.Name,
		MimeType:    f.MimeType,
	}
}

type sheetsSpreadsheets struct {
	srv    *sheets.Service
	logger *slog.Logger
}

func newSheetsSpreadsheets(ctx context.Context, logger *slog.Logger, opts ...option.ClientOption) (*sheetsSpreadsheets, error) {
	logger.Debug("creating sheets service")

	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		logger.Error("failed to create sheets service", "error", err)
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &sheetsSpreadsheets{srv: srv, logger: logger}, nil
}

func (c *sheetsSpreadsheets) Worksheets(ctx context.Context, docID string) ([]Worksheet, error) {
	props, err := c.sheetProperties(ctx, docID)
	if err != nil {
		return nil, err
	}

	worksheets := make([]Worksheet, 0, len(props))
	for _, p := range props {
		worksheets = append(worksheets, worksheetFromProperties(docID, p))
	}
	return worksheets, nil
}

func (c *sheetsSpreadsheets) AddWorksheet(ctx context.Context, docID, title string, rows, cols int) (*Worksheet, error) {
	rq := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{
					Title: title,
					GridProperties: &sheets.GridProperties{
						RowCount:    int64(rows),
						ColumnCount: int64(cols),
					},
				},
			},
		}},
	}

	resp, err := c.srv.Spreadsheets.BatchUpdate(docID, rq).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to add worksheet %s: %w", title, err)
	}

	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return nil, fmt.Errorf("failed to add worksheet %s: empty reply", title)
	}

	ws := worksheetFromProperties(docID, resp.Replies[0].AddSheet.Properties)
	return &ws, nil
}

func (c *sheetsSpreadsheets) UpdateCell(ctx context.Context, docID, wsID string, row, col int, value string) error {
	_, title, err := c.sheet(ctx, docID, wsID)
	if err != nil {
		return err
	}

	range_ := fmt.Sprintf("%s!%s%d", quoteSheet(title), columnIndexToLetter(col-1), row)
	return c.write(ctx, docID, range_, [][]interface{}{{value}})
}

func (c *sheetsSpreadsheets) Query(ctx context.Context, docID, wsID string, q *ListQuery) ([]*Entry, error) {
	sheetID, title, err := c.sheet(ctx, docID, wsID)
	if err != nil {
		return nil, err
	}

	data, err := c.read(ctx, docID, quoteSheet(title))
	if err != nil {
		return nil, err
	}

	revs, err := c.revisions(ctx, docID, sheetID)
	if err != nil {
		return nil, err
	}

	_, entries := entriesFromValues(data, revs)
	return q.Apply(entries), nil
}

// InsertRow appends below the table with INSERT_ROWS, so the new row never
// inherits revision metadata from a previous row at that position.
func (c *sheetsSpreadsheets) InsertRow(ctx context.Context, docID, wsID string, values map[string]string) (*Entry, error) {
	_, title, err := c.sheet(ctx, docID, wsID)
	if err != nil {
		return nil, err
	}

	data, err := c.read(ctx, docID, quoteSheet(title)+"!1:1")
	if err != nil {
		return nil, err
	}

	header, _ := entriesFromValues(data, nil)
	if len(header) == 0 {
		return nil, fmt.Errorf("worksheet %s has no header row", title)
	}

	row, full, err := rowValues(header, nil, values)
	if err != nil {
		return nil, err
	}

	updatedRange, err := c.append(ctx, docID, quoteSheet(title)+"!A1", [][]interface{}{row})
	if err != nil {
		return nil, err
	}

	sheetRow, err := parseRowNumber(updatedRange)
	if err != nil {
		return nil, err
	}

	return &Entry{
		Index:   sheetRow - 1,
		Values:  full,
		Version: rowVersion(header, full, 0),
	}, nil
}

// UpdateRow compares the held version against a fresh read, then writes the
// cells and bumps the row's revision in one batch. Writers that interleave
// between the read and the batch are not detected.
func (c *sheetsSpreadsheets) UpdateRow(ctx context.Context, docID, wsID string, entry *Entry, values map[string]string) (*Entry, error) {
	sheetID, title, err := c.sheet(ctx, docID, wsID)
	if err != nil {
		return nil, err
	}

	data, err := c.read(ctx, docID, quoteSheet(title))
	if err != nil {
		return nil, err
	}

	revs, err := c.revisions(ctx, docID, sheetID)
	if err != nil {
		return nil, err
	}

	header, entries := entriesFromValues(data, revs)

	var current *Entry
	for _, e := range entries {
		if e.Index == entry.Index {
			current = e
			break
		}
	}
	if current == nil {
		return nil, &NotFoundError{Resource: "row", ID: strconv.Itoa(entry.Index)}
	}

	if current.Version != entry.Version {
		c.logger.Debug("row version mismatch", "worksheet", title, "row", entry.Index,
			"held", entry.Version, "current", current.Version)
		return nil, &googleapi.Error{
			Code:    http.StatusConflict,
			Message: fmt.Sprintf("row %d was modified since it was read", entry.Index),
		}
	}

	row, full, err := rowValues(header, current.Values, values)
	if err != nil {
		return nil, err
	}

	sheetRow := entry.Index + 1
	rev, tracked := revs[sheetRow]

	rq := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				UpdateCells: &sheets.UpdateCellsRequest{
					Range: &sheets.GridRange{
						SheetId:          sheetID,
						StartRowIndex:    int64(sheetRow - 1),
						EndRowIndex:      int64(sheetRow),
						StartColumnIndex: 0,
						EndColumnIndex:   int64(len(header)),
					},
					Rows:   []*sheets.RowData{{Values: textCells(row)}},
					Fields: "userEnteredValue",
				},
			},
			revisionRequest(sheetID, sheetRow, rev, tracked),
		},
	}

	c.logger.Debug("updating row", "spreadsheet", docID, "worksheet", title, "row", entry.Index, "revision", rev.count+1)

	if _, err := c.srv.Spreadsheets.BatchUpdate(docID, rq).Context(ctx).Do(); err != nil {
		return nil, fmt.Errorf("failed to update row %d of %s: %w", entry.Index, title, err)
	}

	return &Entry{
		Index:   entry.Index,
		Values:  full,
		Version: rowVersion(header, full, rev.count+1),
	}, nil
}

func (c *sheetsSpreadsheets) sheetProperties(ctx context.Context, docID string) ([]*sheets.SheetProperties, error) {
	resp, err := c.srv.Spreadsheets.Get(docID).
		Fields("sheets.properties(sheetId,title,gridProperties)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list worksheets of %s: %w", docID, err)
	}

	props := make([]*sheets.SheetProperties, 0, len(resp.Sheets))
	for _, s := range resp.Sheets {
		if s.Properties != nil {
			props = append(props, s.Properties)
		}
	}
	return props, nil
}

// sheet resolves a worksheet id to its numeric sheet id and title.
func (c *sheetsSpreadsheets) sheet(ctx context.Context, docID, wsID string) (int64, string, error) {
	sheetID, err := strconv.ParseInt(wsID, 10, 64)
	if err != nil {
		return 0, "", &InvalidArgumentError{Argument: "worksheet id", Reason: fmt.Sprintf("%q is not numeric", wsID)}
	}

	props, err := c.sheetProperties(ctx, docID)
	if err != nil {
		return 0, "", err
	}

	for _, p := range props {
		if p.SheetId == sheetID {
			return sheetID, p.Title, nil
		}
	}

	return 0, "", &NotFoundError{Resource: "worksheet", ID: wsID}
}

// revisions returns the write counters of a worksheet's rows, keyed by
// 1-based sheet row.
func (c *sheetsSpreadsheets) revisions(ctx context.Context, docID string, sheetID int64) (map[int]rowRevision, error) {
	rq := &sheets.SearchDeveloperMetadataRequest{
		DataFilters: []*sheets.DataFilter{{
			DeveloperMetadataLookup: &sheets.DeveloperMetadataLookup{
				MetadataKey: revisionKey,
			},
		}},
	}

	resp, err := c.srv.Spreadsheets.DeveloperMetadata.Search(docID, rq).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read row revisions of %s: %w", docID, err)
	}

	revs := make(map[int]rowRevision, len(resp.MatchedDeveloperMetadata))
	for _, m := range resp.MatchedDeveloperMetadata {
		md := m.DeveloperMetadata
		if md == nil || md.Location == nil || md.Location.DimensionRange == nil {
			continue
		}
		dr := md.Location.DimensionRange
		if dr.SheetId != sheetID || dr.Dimension != "ROWS" {
			continue
		}
		count, err := strconv.ParseInt(md.MetadataValue, 10, 64)
		if err != nil {
			continue
		}
		revs[int(dr.StartIndex)+1] = rowRevision{metadataID: md.MetadataId, count: count}
	}
	return revs, nil
}

func (c *sheetsSpreadsheets) read(ctx context.Context, docID, range_ string) ([][]interface{}, error) {
	c.logger.Debug("reading range", "spreadsheet", docID, "range", range_)

	resp, err := c.srv.Spreadsheets.Values.Get(docID, range_).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read range %s: %w", range_, err)
	}
	return resp.Values, nil
}

func (c *sheetsSpreadsheets) write(ctx context.Context, docID, range_ string, values [][]interface{}) error {
	c.logger.Debug("writing range", "spreadsheet", docID, "range", range_)

	valueRange := &sheets.ValueRange{
		Values: values,
	}

	_, err := c.srv.Spreadsheets.Values.Update(docID, range_, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()

	if err != nil {
		return fmt.Errorf("failed to write to range %s: %w", range_, err)
	}
	return nil
}

func (c *sheetsSpreadsheets) append(ctx context.Context, docID, range_ string, values [][]interface{}) (string, error) {
	c.logger.Debug("appending to range", "spreadsheet", docID, "range", range_)

	valueRange := &sheets.ValueRange{
		Values: values,
	}

	resp, err := c.srv.Spreadsheets.Values.Append(docID, range_, valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()

	if err != nil {
		return "", fmt.Errorf("failed to append to range %s: %w", range_, err)
	}

	if resp.Updates == nil {
		return "", fmt.Errorf("failed to append to range %s: no updated range", range_)
	}
	return resp.Updates.UpdatedRange, nil
}

func worksheetFromProperties(docID string, p *sheets.SheetProperties) Worksheet {
	ws := Worksheet{
		ResourceURL: worksheetResourceURL(docID, p.SheetId),
		Title:       p.Title,
	}
	if p.GridProperties != nil {
		ws.RowCount = int(p.GridProperties.RowCount)
		ws.ColumnCount = int(p.GridProperties.ColumnCount)
	}
	return ws
}

// entriesFromValues splits raw sheet values into the header row and one
// entry per data row. Missing trailing cells read as empty text. Blank rows
// are skipped but still count towards the position of the rows below them.
func entriesFromValues(data [][]interface{}, revs map[int]rowRevision) ([]string, []*Entry) {
	if len(data) == 0 {
		return nil, nil
	}

	header := make([]string, len(data[0]))
	for i, h := range data[0] {
		header[i] = fmt.Sprintf("%v", h)
	}

	entries := make([]*Entry, 0, len(data)-1)
	for i, row := range data[1:] {
		if blankRow(row) {
			continue
		}

		values := make(map[string]string, len(header))
		for j, name := range header {
			if name == "" {
				continue
			}
			if j < len(row) {
				values[name] = fmt.Sprintf("%v", row[j])
			} else {
				values[name] = ""
			}
		}

		// Data row i+1 sits on sheet row i+2.
		entries = append(entries, &Entry{
			Index:   i + 1,
			Values:  values,
			Version: rowVersion(header, values, revs[i+2].count),
		})
	}

	return header, entries
}

func blankRow(row []interface{}) bool {
	for _, cell := range row {
		if fmt.Sprintf("%v", cell) != "" {
			return false
		}
	}
	return true
}

// rowValues lays out base overlaid with values in header order.
func rowValues(header []string, base, values map[string]string) ([]interface{}, map[string]string, error) {
	known := make(map[string]bool, len(header))
	for _, h := range header {
		known[h] = true
	}
	for k := range values {
		if !known[k] {
			return nil, nil, &InvalidArgumentError{Argument: "field", Reason: fmt.Sprintf("unknown column %q", k)}
		}
	}

	row := make([]interface{}, len(header))
	full := make(map[string]string, len(header))
	for i, h := range header {
		v, ok := values[h]
		if !ok {
			v = base[h]
		}
		row[i] = v
		if h != "" {
			full[h] = v
		}
	}
	return row, full, nil
}

// rowVersion identifies a row state by its write count and its cells. The
// count catches rewrites that leave the text unchanged; the cells catch
// edits made outside this package, which do not bump the count.
func rowVersion(header []string, values map[string]string, revision int64) string {
	h := xxhash.New()
	_, _ = h.WriteString(strconv.FormatInt(revision, 10))
	_, _ = h.Write([]byte{0x1d})
	for _, name := range header {
		if name == "" {
			continue
		}
		_, _ = h.WriteString(name)
		_, _ = h.Write([]byte{0x1f})
		_, _ = h.WriteString(values[name])
		_, _ = h.Write([]byte{0x1e})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

func textCells(row []interface{}) []*sheets.CellData {
	cells := make([]*sheets.CellData, len(row))
	for i, v := range row {
		text := fmt.Sprintf("%v", v)
		cells[i] = &sheets.CellData{
			UserEnteredValue: &sheets.ExtendedValue{StringValue: &text},
		}
	}
	return cells
}

func revisionRequest(sheetID int64, sheetRow int, rev rowRevision, tracked bool) *sheets.Request {
	next := strconv.FormatInt(rev.count+1, 10)

	if tracked {
		return &sheets.Request{
			UpdateDeveloperMetadata: &sheets.UpdateDeveloperMetadataRequest{
				DataFilters: []*sheets.DataFilter{{
					DeveloperMetadataLookup: &sheets.DeveloperMetadataLookup{
						MetadataId: rev.metadataID,
					},
				}},
				DeveloperMetadata: &sheets.DeveloperMetadata{MetadataValue: next},
				Fields:            "metadataValue",
			},
		}
	}

	return &sheets.Request{
		CreateDeveloperMetadata: &sheets.CreateDeveloperMetadataRequest{
			DeveloperMetadata: &sheets.DeveloperMetadata{
				MetadataKey:   revisionKey,
				MetadataValue: next,
				Visibility:    "DOCUMENT",
				Location: &sheets.DeveloperMetadataLocation{
					DimensionRange: &sheets.DimensionRange{
						SheetId:    sheetID,
						Dimension:  "ROWS",
						StartIndex: int64(sheetRow - 1),
						EndIndex:   int64(sheetRow),
					},
				},
			},
		},
	}
}

// parseRowNumber returns the row of the first cell of an A1 range such as
// 'Users'!A5:C5.
func parseRowNumber(a1 string) (int, error) {
	cell := a1
	if i := strings.LastIndex(cell, "!"); i >= 0 {
		cell = cell[i+1:]
	}
	if i := strings.Index(cell, ":"); i >= 0 {
		cell = cell[:i]
	}
	digits := strings.TrimLeft(cell, "$ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz")
	digits = strings.TrimPrefix(digits, "$")

	row, err := strconv.Atoi(digits)
	if err != nil || row < 1 {
		return 0, fmt.Errorf("invalid range %q", a1)
	}
	return row, nil
}

func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func columnIndexToLetter(index int) string {
	if index < 0 {
		return "A"
	}
	result := ""
	for index >= 0 {
		result = string(rune('A'+index%26)) + result
		index = index/26 - 1
	}
	return result
}
