package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/ingester/internal/core/domain"
	"github.com/vietddude/ingester/internal/infra/storage/postgres"
)

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor [pipeline] [checkpoint]",
	Short: "Reset the cursor of a pipeline so ingestion resumes after the given checkpoint",
	Args:  cobra.ExactArgs(2),
	Run:   runResetCursor,
}

func init() {
	rootCmd.AddCommand(resetCursorCmd)
}

func runResetCursor(cmd *cobra.Command, args []string) {
	pipeline := args[0]
	seq, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		fmt.Printf("Invalid checkpoint number: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig()

	ctx := context.Background()
	db := openDB(ctx, cfg.Database)
	defer func() {
		_ = db.Close()
	}()

	err = postgres.NewCursorRepo(db).Save(ctx, &domain.Cursor{
		Pipeline:       pipeline,
		SequenceNumber: seq,
		UpdatedAt:      time.Now(),
	})
	if err != nil {
		slog.Error("Failed to reset cursor", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully reset cursor for %s to checkpoint %d\n", pipeline, seq)
}
