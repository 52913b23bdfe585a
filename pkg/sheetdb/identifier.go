package sheetdb

import (
	"fmt"
	"net/url"
	"strings"
)

// SpreadsheetPrefix is the URL-encoded type token that precedes a
// spreadsheet key in a document resource URL.
const SpreadsheetPrefix = "spreadsheet%3A"

const (
	documentResourceBase  = "https://www.googleapis.com/drive/v3/files/"
	worksheetResourceBase = "https://sheets.googleapis.com/v4/spreadsheets/"
)

// ExtractIdentifier returns the last '/'-delimited segment of resourceURL
// with prefix stripped from its front, if present. An empty prefix leaves
// the segment unmodified.
func ExtractIdentifier(resourceURL, prefix string) string {
	id := resourceURL
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}

	if prefix != "" {
		id = strings.TrimPrefix(id, prefix)
	}

	return id
}

func documentResourceURL(id string) string {
	return documentResourceBase + url.QueryEscape("spreadsheet:"+id)
}

func worksheetResourceURL(docID string, sheetID int64) string {
	return fmt.Sprintf("%s%s/sheets/%d", worksheetResourceBase, url.PathEscape(docID), sheetID)
}
