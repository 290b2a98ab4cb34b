package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Another0Noob/vault-downloader/internal/ledger"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show download progress for the target folder(s)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus() error {
	targets, err := targetFolders()
	if err != nil {
		return err
	}

	for _, folder := range targets {
		folder, err := filepath.Abs(folder)
		if err != nil {
			return fmt.Errorf("resolve folder: %w", err)
		}
		path := filepath.Join(folder, "ROMs", ledger.DefaultFilename)

		led, err := ledger.Load(path)
		if err != nil {
			return err
		}

		fmt.Printf("--- %s ---\n", folder)
		fmt.Printf("Completed: %d\n", led.CompletedCount())
		fmt.Printf("Downloaded this collection: %d\n", led.TotalDownloaded())
		if last := led.LastSection(); last != "" {
			fmt.Printf("Resume point: section %s\n", last)
		}
		failures := led.Failures()
		fmt.Printf("Failed: %d\n", len(failures))
		for _, f := range failures {
			fmt.Printf("  %s (%s): %s at %s\n",
				f.Name, f.GameID, f.Error, f.Timestamp.Format("2006-01-02 15:04"))
		}
	}
	return nil
}
