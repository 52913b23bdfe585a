package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/elbader17/sheetdb/pkg/sheetdb"
)

type CreateCmd struct {
	Name string `arg:"" name:"name" help:"Database name"`
	CSV  string `name:"csv" help:"Initial content (CSV file)" type:"existingfile"`
}

func (c *CreateCmd) Run(ctx context.Context, flags *RootFlags) error {
	client, err := newClient(ctx, flags)
	if err != nil {
		return err
	}

	var content io.Reader
	if c.CSV != "" {
		f, err := os.Open(c.CSV)
		if err != nil {
			return err
		}
		defer f.Close()
		content = f
	}

	db := sheetdb.NewDatabase(client)
	if err := db.Create(ctx, c.Name, content); err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, db.ID())
	return nil
}

type TablesCmd struct {
	Database string `arg:"" name:"database" help:"Database ID"`
}

func (c *TablesCmd) Run(ctx context.Context, flags *RootFlags) error {
	db, err := openDatabase(ctx, flags, c.Database)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tROWS\tCOLUMNS")
	for _, ws := range db.Tables() {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n",
			sheetdb.ExtractIdentifier(ws.ResourceURL, ""), ws.Title, ws.RowCount, ws.ColumnCount)
	}
	return tw.Flush()
}

type CreateTableCmd struct {
	Database string   `arg:"" name:"database" help:"Database ID"`
	Name     string   `arg:"" name:"name" help:"Table name"`
	Fields   []string `arg:"" name:"fields" help:"Column names"`
}

func (c *CreateTableCmd) Run(ctx context.Context, flags *RootFlags) error {
	db, err := openDatabase(ctx, flags, c.Database)
	if err != nil {
		return err
	}

	table, err := db.CreateTable(ctx, c.Name, c.Fields)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%s\t%s\t%s\n", table.ID(), table.Title(), strings.Join(table.Fields(), ","))
	return nil
}
