package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Aviral1511/Collaborative-Canvas/internal/config"
	"github.com/Aviral1511/Collaborative-Canvas/internal/db"
	"github.com/Aviral1511/Collaborative-Canvas/internal/export"
	"github.com/Aviral1511/Collaborative-Canvas/pkg/protocol"
)

// exportCmd renders a saved room to PDF without starting the server.
func exportCmd(configFile *string) *cobra.Command {
	var (
		output     string
		checkpoint int64
	)

	cmd := &cobra.Command{
		Use:   "export <room-id>",
		Short: "Render a saved room or checkpoint to PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID := args[0]

			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}
			if cfg.Storage.Type != "sqlite" {
				return fmt.Errorf("export needs sqlite storage, configured: %s", cfg.Storage.Type)
			}

			database, err := db.New(cfg.Storage.SQLite.Path, zap.NewNop())
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer database.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			title := "Room " + roomID

			if checkpoint > 0 {
				cp, err := database.GetCheckpoint(ctx, checkpoint)
				if err != nil {
					return err
				}
				if cp == nil || cp.RoomID != roomID {
					return fmt.Errorf("checkpoint %d not found in room %s", checkpoint, roomID)
				}
				title = fmt.Sprintf("%s (%s)", title, cp.Name)
				return writePDF(output, roomID, title, cp.Strokes)
			}

			snap, err := database.GetSnapshot(ctx, roomID)
			if err != nil {
				return err
			}
			if snap == nil {
				return fmt.Errorf("room %s has no saved snapshot", roomID)
			}
			return writePDF(output, roomID, title, snap.Strokes)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default <room-id>.pdf)")
	cmd.Flags().Int64Var(&checkpoint, "checkpoint", 0, "Export this checkpoint instead of the latest snapshot")
	return cmd
}

func writePDF(output, roomID, title string, strokes []protocol.Stroke) error {
	if output == "" {
		output = roomID + ".pdf"
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", output, err)
	}
	if err := export.Render(f, strokes, export.Options{Title: title}); err != nil {
		f.Close()
		return fmt.Errorf("failed to render PDF: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Printf("Wrote %d strokes to %s\n", len(strokes), output)
	return nil
}
