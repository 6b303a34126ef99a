package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/accessdesk/credpool/internal/audit"
	"github.com/accessdesk/credpool/internal/db"
	"github.com/accessdesk/credpool/internal/inventory"
	"github.com/accessdesk/credpool/internal/pool"
	"github.com/accessdesk/credpool/internal/secrets"
)

// version is overridden at build time via -ldflags.
var version = "dev"

// resolveDatabaseURL returns the database URL from the flag or the
// DATABASE_URL env var. Returns an error if neither is set.
func resolveDatabaseURL(cmd *cobra.Command, flagValue string) (string, error) {
	if cmd.Flags().Changed("database-url") {
		return flagValue, nil
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("database URL required: use --database-url flag or set DATABASE_URL")
}

func main() {
	// Optional .env for local operator runs; absence is not an error.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:     "credpool-admin",
		Short:   "Operator tooling for the credential pool",
		Version: version,
	}

	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newRetireCmd())
	rootCmd.AddCommand(newCountCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newMigrateCmd() *cobra.Command {
	var (
		databaseURL string
		schema      string
		status      bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := resolveDatabaseURL(cmd, databaseURL)
			if err != nil {
				return err
			}
			if status {
				return db.MigrationStatus(url, schema)
			}
			return db.RunMigrations(url, schema)
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or set DATABASE_URL)")
	cmd.Flags().StringVar(&schema, "schema", "", "Database schema to migrate (defaults to public)")
	cmd.Flags().BoolVar(&status, "status", false, "Show migration status instead of applying")

	return cmd
}

func newImportCmd() *cobra.Command {
	var (
		databaseURL string
		schema      string
		file        string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load credentials into the pool from a JSON file",
		Long: `Read a JSON array of {"id", "category", "secret"} items and insert them
as unassigned stock. IDs are optional and generated when absent. Secret
material is encrypted with the key from CREDPOOL_MASTER_KEY before it is
stored; the key never appears on the command line. Use "-" to read the
items from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			url, err := resolveDatabaseURL(cmd, databaseURL)
			if err != nil {
				return err
			}
			return runImport(cmd.Context(), url, schema, file)
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or set DATABASE_URL)")
	cmd.Flags().StringVar(&schema, "schema", "", "Database schema (defaults to public)")
	cmd.Flags().StringVar(&file, "file", "", "Path to the JSON items file (- for stdin)")

	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		databaseURL string
		schema      string
		category    string
		output      string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the assignment state of the pool as JSON",
		Long: `Write every credential's id, category, status and owner as a JSON array.
Secret material is never included in the export. An empty --category
exports every category.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := resolveDatabaseURL(cmd, databaseURL)
			if err != nil {
				return err
			}
			return runExport(cmd.Context(), url, schema, category, output)
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or set DATABASE_URL)")
	cmd.Flags().StringVar(&schema, "schema", "", "Database schema (defaults to public)")
	cmd.Flags().StringVar(&category, "category", "", "Restrict the export to one category")
	cmd.Flags().StringVar(&output, "output", "", "Write to this file instead of stdout")

	return cmd
}

func newRetireCmd() *cobra.Command {
	var (
		databaseURL string
		schema      string
	)

	cmd := &cobra.Command{
		Use:   "retire <credential-id>...",
		Short: "Permanently remove credentials from circulation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := resolveDatabaseURL(cmd, databaseURL)
			if err != nil {
				return err
			}
			return runRetire(cmd.Context(), url, schema, args)
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or set DATABASE_URL)")
	cmd.Flags().StringVar(&schema, "schema", "", "Database schema (defaults to public)")

	return cmd
}

func newCountCmd() *cobra.Command {
	var (
		databaseURL string
		schema      string
		category    string
	)

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Report how many unassigned credentials a category holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			if category == "" {
				return fmt.Errorf("--category is required")
			}
			url, err := resolveDatabaseURL(cmd, databaseURL)
			if err != nil {
				return err
			}
			return runCount(cmd.Context(), url, schema, category)
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or set DATABASE_URL)")
	cmd.Flags().StringVar(&schema, "schema", "", "Database schema (defaults to public)")
	cmd.Flags().StringVar(&category, "category", "", "Credential category, e.g. wg")

	return cmd
}

func connect(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	pgPool, err := db.InitDB(ctx, db.Config{URL: databaseURL, Schema: schema})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return pgPool, nil
}

func runImport(ctx context.Context, databaseURL, schema, file string) error {
	items, err := readImportFile(file)
	if err != nil {
		return err
	}

	keyHex := os.Getenv("CREDPOOL_MASTER_KEY")
	if keyHex == "" {
		return fmt.Errorf("CREDPOOL_MASTER_KEY must be set to import secret material")
	}
	key, err := secrets.ParseKey(keyHex)
	if err != nil {
		return fmt.Errorf("parse master key: %w", err)
	}

	pgPool, err := connect(ctx, databaseURL, schema)
	if err != nil {
		return err
	}
	defer pgPool.Close()

	svc := inventory.NewService(pgPool, secrets.NewCipher(key), audit.NewRecorder(pgPool, nil))
	result, err := svc.Import(ctx, "", items)
	if err != nil {
		return err
	}

	fmt.Printf("imported=%d\n", len(result.ImportedIDs))
	fmt.Printf("failed=%d\n", len(result.Failed))
	for _, f := range result.Failed {
		fmt.Printf("failure index=%d id=%s reason=%s\n", f.Index, f.ID, f.Reason)
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d of %d items were not imported", len(result.Failed), len(items))
	}
	return nil
}

func readImportFile(file string) ([]inventory.ImportItem, error) {
	var data []byte
	var err error
	if file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read items file: %w", err)
	}

	var items []inventory.ImportItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse items file: %w", err)
	}
	return items, nil
}

func runExport(ctx context.Context, databaseURL, schema, category, output string) error {
	pgPool, err := connect(ctx, databaseURL, schema)
	if err != nil {
		return err
	}
	defer pgPool.Close()

	svc := inventory.NewService(pgPool, nil, nil)
	records, err := svc.Export(ctx, category)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	data = append(data, '\n')

	if output == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o600); err != nil {
		return fmt.Errorf("write export file: %w", err)
	}
	fmt.Printf("exported=%d file=%s\n", len(records), output)
	return nil
}

func runRetire(ctx context.Context, databaseURL, schema string, ids []string) error {
	pgPool, err := connect(ctx, databaseURL, schema)
	if err != nil {
		return err
	}
	defer pgPool.Close()

	svc := inventory.NewService(pgPool, nil, audit.NewRecorder(pgPool, nil))
	result, err := svc.Retire(ctx, "", ids)
	if err != nil {
		return err
	}

	fmt.Printf("retired=%d\n", len(result.Retired))
	fmt.Printf("failed=%d\n", len(result.Failed))
	for _, f := range result.Failed {
		fmt.Printf("failure id=%s reason=%s\n", f.ID, f.Reason)
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d ids were not retired", len(result.Failed))
	}
	return nil
}

func runCount(ctx context.Context, databaseURL, schema, category string) error {
	pgPool, err := connect(ctx, databaseURL, schema)
	if err != nil {
		return err
	}
	defer pgPool.Close()

	svc := pool.NewService(pool.NewStore(pgPool), nil, 0)
	count, err := svc.CountAvailable(ctx, category)
	if err != nil {
		return err
	}

	fmt.Printf("category=%s available=%d\n", category, count)
	return nil
}
