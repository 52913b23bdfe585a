package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/elbader17/sheetdb/pkg/sheetdb"
)

type RootFlags struct {
	Credentials string `name:"credentials" help:"Service account key file" env:"SHEETDB_CREDENTIALS" type:"path"`
	Identity    string `name:"identity" help:"User to act as (domain-wide delegation)" env:"SHEETDB_IDENTITY"`
	Verbose     bool   `name:"verbose" short:"v" help:"Log API calls to stderr"`
}

type CLI struct {
	RootFlags `embed:""`

	Create      CreateCmd      `cmd:"" help:"Create a database from an optional CSV file"`
	Tables      TablesCmd      `cmd:"" help:"List the tables of a database"`
	CreateTable CreateTableCmd `cmd:"" name:"create-table" help:"Create a table with the given fields"`
	Insert      InsertCmd      `cmd:"" help:"Insert a row (field=value ...)"`
	Get         GetCmd         `cmd:"" help:"Get the n-th row of a table"`
	Filter      FilterCmd      `cmd:"" help:"List rows matching field=value criteria"`
	Random      RandomCmd      `cmd:"" help:"Get a random row"`
	Update      UpdateCmd      `cmd:"" help:"Update fields of the n-th row"`
	UpdateWhere UpdateWhereCmd `cmd:"" name:"update-where" help:"Update fields of every row matching --where criteria"`
}

// newClient is replaced in tests.
var newClient = func(ctx context.Context, flags *RootFlags) (*sheetdb.Client, error) {
	if strings.TrimSpace(flags.Credentials) == "" {
		return nil, usage("missing --credentials (or SHEETDB_CREDENTIALS)")
	}

	credentials, err := os.ReadFile(flags.Credentials)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	return sheetdb.NewClient(ctx, sheetdb.Config{
		Credentials: credentials,
		Identity:    flags.Identity,
		Logger:      flags.logger(),
	})
}

func (f *RootFlags) logger() *slog.Logger {
	level := slog.LevelWarn
	if f.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func Execute(args []string) error {
	cli := &CLI{}

	parser, err := kong.New(cli,
		kong.Name("sheetdb"),
		kong.Description("Use a Google spreadsheet as a small table store"),
		kong.UsageOnError(),
	)
	if err != nil {
		return err
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		parser.Errorf("%s", err)
		return err
	}

	kctx.BindTo(context.Background(), (*context.Context)(nil))
	kctx.Bind(&cli.RootFlags)

	if err := kctx.Run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func usage(msg string) error {
	return fmt.Errorf("usage: %s", msg)
}

func openDatabase(ctx context.Context, flags *RootFlags, id string) (*sheetdb.Database, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, usage("empty database id")
	}

	client, err := newClient(ctx, flags)
	if err != nil {
		return nil, err
	}

	db := sheetdb.NewDatabase(client)
	if err := db.Open(ctx, id); err != nil {
		return nil, err
	}
	return db, nil
}

func openTable(ctx context.Context, flags *RootFlags, id, name string) (*sheetdb.Table, error) {
	db, err := openDatabase(ctx, flags, id)
	if err != nil {
		return nil, err
	}
	return db.OpenTable(ctx, name, sheetdb.UseCache)
}

// parseAssignments turns field=value arguments into row values.
func parseAssignments(args []string) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(args))
	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, usage(fmt.Sprintf("expected field=value, got %q", arg))
		}
		values[field] = value
	}
	return values, nil
}
