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

	"github.com/vietddude/ingester/internal/core/config"
	"github.com/vietddude/ingester/internal/core/domain"
	redisclient "github.com/vietddude/ingester/internal/infra/redis"
	"github.com/vietddude/ingester/internal/infra/storage"
	"github.com/vietddude/ingester/internal/infra/storage/postgres"
)

var failedCmd = &cobra.Command{
	Use:   "failed [pipeline]",
	Short: "List checkpoints that failed with a terminal error",
	Args:  cobra.MaximumNArgs(1),
	Run:   runFailed,
}

func init() {
	rootCmd.AddCommand(failedCmd)
}

func runFailed(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()

	repo, closeFn := openFailedRepo(ctx, cfg)
	defer closeFn()

	pipelines := make([]string, 0, len(cfg.Pipelines))
	if len(args) == 1 {
		pipelines = append(pipelines, args[0])
	} else {
		for _, p := range cfg.Pipelines {
			pipelines = append(pipelines, p.Name)
		}
	}

	var all []*domain.FailedCheckpoint
	for _, name := range pipelines {
		failed, err := repo.GetAll(ctx, name)
		if err != nil {
			slog.Error("Failed to list failed checkpoints", "pipeline", name, "error", err)
			os.Exit(1)
		}
		all = append(all, failed...)
	}

	printFailed(os.Stdout, all)
}

// openFailedRepo prefers Redis when configured, matching the service's wiring.
func openFailedRepo(ctx context.Context, cfg *config.AppConfig) (storage.FailedCheckpointRepository, func()) {
	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		return redisclient.NewFailedCheckpointRepo(rc), func() { _ = rc.Close() }
	}

	db := openDB(ctx, cfg.Database)
	return postgres.NewFailedCheckpointRepo(db), func() { _ = db.Close() }
}

func printFailed(out io.Writer, failed []*domain.FailedCheckpoint) {
	if len(failed) == 0 {
		_, _ = fmt.Fprintln(out, "No failed checkpoints")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "PIPELINE\tCHECKPOINT\tKIND\tATTEMPTS\tLAST ATTEMPT\tERROR")
	for _, f := range failed {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\t%s\n",
			f.Pipeline, f.SequenceNumber, f.Kind, f.Attempts, f.LastAttempt.Format(time.RFC3339), f.Error)
	}
	_ = w.Flush()
}
