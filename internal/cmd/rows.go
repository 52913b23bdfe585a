package cmd

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/elbader17/sheetdb/pkg/sheetdb"
)

type InsertCmd struct {
	Database string   `arg:"" name:"database" help:"Database ID"`
	Table    string   `arg:"" name:"table" help:"Table name"`
	Values   []string `arg:"" name:"values" help:"field=value pairs"`
}

func (c *InsertCmd) Run(ctx context.Context, flags *RootFlags) error {
	values, err := parseAssignments(c.Values)
	if err != nil {
		return err
	}

	table, err := openTable(ctx, flags, c.Database, c.Table)
	if err != nil {
		return err
	}

	row, err := table.InsertInto(ctx, values)
	if err != nil {
		return err
	}

	return printRows(table, []*sheetdb.Row{row})
}

type GetCmd struct {
	Database string `arg:"" name:"database" help:"Database ID"`
	Table    string `arg:"" name:"table" help:"Table name"`
	Row      int    `arg:"" name:"row" help:"Row number (1-based)"`
}

func (c *GetCmd) Run(ctx context.Context, flags *RootFlags) error {
	table, err := openTable(ctx, flags, c.Database, c.Table)
	if err != nil {
		return err
	}

	row, err := table.GetRow(ctx, c.Row)
	if err != nil {
		return err
	}

	return printRows(table, []*sheetdb.Row{row})
}

type FilterCmd struct {
	Database string   `arg:"" name:"database" help:"Database ID"`
	Table    string   `arg:"" name:"table" help:"Table name"`
	Criteria []string `arg:"" optional:"" name:"criteria" help:"field=value equality criteria"`
	OrderBy  string   `name:"order-by" help:"Sort by this field"`
	Reverse  bool     `name:"reverse" help:"Reverse the order"`
}

func (c *FilterCmd) Run(ctx context.Context, flags *RootFlags) error {
	criteria, err := parseAssignments(c.Criteria)
	if err != nil {
		return err
	}

	table, err := openTable(ctx, flags, c.Database, c.Table)
	if err != nil {
		return err
	}

	var opts []sheetdb.FilterOption
	if c.OrderBy != "" {
		opts = append(opts, sheetdb.OrderBy(c.OrderBy))
	}
	if c.Reverse {
		opts = append(opts, sheetdb.Reverse())
	}

	rows, err := table.Filter(ctx, criteria, opts...)
	if err != nil {
		return err
	}

	return printRows(table, rows)
}

type RandomCmd struct {
	Database string `arg:"" name:"database" help:"Database ID"`
	Table    string `arg:"" name:"table" help:"Table name"`
}

func (c *RandomCmd) Run(ctx context.Context, flags *RootFlags) error {
	table, err := openTable(ctx, flags, c.Database, c.Table)
	if err != nil {
		return err
	}

	row, err := table.GetRandom(ctx)
	if err != nil {
		return err
	}

	return printRows(table, []*sheetdb.Row{row})
}

type UpdateCmd struct {
	Database string   `arg:"" name:"database" help:"Database ID"`
	Table    string   `arg:"" name:"table" help:"Table name"`
	Row      int      `arg:"" name:"row" help:"Row number (1-based)"`
	Values   []string `arg:"" name:"values" help:"field=value pairs"`
}

func (c *UpdateCmd) Run(ctx context.Context, flags *RootFlags) error {
	values, err := parseAssignments(c.Values)
	if err != nil {
		return err
	}

	table, err := openTable(ctx, flags, c.Database, c.Table)
	if err != nil {
		return err
	}

	row, err := table.GetRow(ctx, c.Row)
	if err != nil {
		return err
	}

	if err := row.Update(ctx, values); err != nil {
		return err
	}

	return printRows(table, []*sheetdb.Row{row})
}

type UpdateWhereCmd struct {
	Database string   `arg:"" name:"database" help:"Database ID"`
	Table    string   `arg:"" name:"table" help:"Table name"`
	Values   []string `arg:"" name:"values" help:"field=value pairs to write"`
	Where    []string `name:"where" help:"field=value equality criteria (repeatable)"`
}

func (c *UpdateWhereCmd) Run(ctx context.Context, flags *RootFlags) error {
	values, err := parseAssignments(c.Values)
	if err != nil {
		return err
	}

	criteria, err := parseAssignments(c.Where)
	if err != nil {
		return err
	}

	table, err := openTable(ctx, flags, c.Database, c.Table)
	if err != nil {
		return err
	}

	n, err := table.UpdateWhere(ctx, criteria, values)
	if err != nil {
		if n > 0 {
			fmt.Fprintf(os.Stderr, "updated %d rows before the failure\n", n)
		}
		return err
	}

	fmt.Printf("updated %d rows\n", n)
	return nil
}

// printRows writes a ROW column followed by the table's fields, or the
// sorted union of row fields for a table opened without a schema.
func printRows(table *sheetdb.Table, rows []*sheetdb.Row) error {
	columns := table.Fields()
	if columns == nil {
		seen := map[string]bool{}
		for _, r := range rows {
			for k := range r.Data() {
				seen[k] = true
			}
		}
		columns = slices.Sorted(maps.Keys(seen))
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	header := append([]string{"ROW"}, columns...)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, r := range rows {
		cells := []string{strconv.Itoa(r.Index())}
		for _, col := range columns {
			cells = append(cells, r.Get(col))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}
