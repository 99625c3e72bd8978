package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/ingester/internal/core/domain"
	"github.com/vietddude/ingester/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the cursor of every pipeline",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// openDB connects to the configured database or exits.
func openDB(ctx context.Context, cfg postgres.Config) *postgres.DB {
	if cfg.URL == "" {
		slog.Error("This command requires database.url to be configured")
		os.Exit(1)
	}
	db, err := postgres.NewDB(ctx, cfg)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	return db
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	db := openDB(ctx, cfg.Database)
	defer func() {
		_ = db.Close()
	}()

	cursors, err := postgres.NewCursorRepo(db).GetAll(ctx)
	if err != nil {
		slog.Error("Failed to query cursors", "error", err)
		os.Exit(1)
	}
	latest, err := postgres.NewCheckpointRepo(db).GetLatest(ctx)
	if err != nil {
		slog.Error("Failed to query latest checkpoint", "error", err)
		os.Exit(1)
	}

	printCursors(os.Stdout, cursors, latest)
}

func printCursors(out io.Writer, cursors []*domain.Cursor, latest *domain.CheckpointSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "PIPELINE\tCHECKPOINT\tUPDATED")
	for _, c := range cursors {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", c.Pipeline, c.SequenceNumber, c.UpdatedAt.Format(time.RFC3339))
	}
	_ = w.Flush()

	if latest != nil {
		_, _ = fmt.Fprintf(out, "\nLatest stored checkpoint: %d (ingested %s)\n",
			latest.SequenceNumber, latest.IngestedAt.Format(time.RFC3339))
	}
}
