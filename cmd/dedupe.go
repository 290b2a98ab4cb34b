package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Another0Noob/vault-downloader/internal/index"
	"github.com/Another0Noob/vault-downloader/internal/match"
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Quarantine redundant local files that share a title",
	Long: `dedupe indexes the target folder(s), finds normalized names with more
than one file, keeps the preferred copy, and moves the rest into a
timestamped duplicates folder. Nothing is deleted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDedupe()
	},
}

func init() {
	rootCmd.AddCommand(dedupeCmd)

	dedupeCmd.Flags().BoolVar(
		&yesDelete,
		"yes-delete",
		false,
		"auto-confirm quarantining",
	)
	dedupeCmd.Flags().BoolVar(
		&allowPrompt,
		"prompt",
		false,
		"confirm each title interactively",
	)
}

func runDedupe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	targets, err := targetFolders()
	if err != nil {
		return err
	}

	for _, folder := range targets {
		folder, err := filepath.Abs(folder)
		if err != nil {
			return fmt.Errorf("resolve folder: %w", err)
		}
		root := filepath.Join(folder, "ROMs")

		ix, err := index.Build(root, index.Options{MaxEntries: cfg.IndexMaxFiles})
		if err != nil {
			return fmt.Errorf("index %s: %w", root, err)
		}

		resolver := &match.Resolver{
			AutoConfirm: yesDelete,
			Prompt:      duplicatePrompt(),
		}

		moved := 0
		for _, key := range ix.Keys() {
			paths := ix.Paths(key)
			if len(paths) < 2 || key == "" {
				continue
			}
			// Keys are already normalized, so the key doubles as the title.
			preferred := match.ChoosePreferred(paths, key)
			extras := make([]string, 0, len(paths)-1)
			for _, p := range paths {
				if p != preferred {
					extras = append(extras, p)
				}
			}
			quarantined, err := resolver.Quarantine(root, preferred, extras)
			if err != nil {
				return err
			}
			if len(quarantined) > 0 {
				fmt.Printf("Kept %s, quarantined %d duplicate(s).\n",
					filepath.Base(preferred), len(quarantined))
				moved += len(quarantined)
			}
		}
		fmt.Printf("--- %s: %d duplicate(s) quarantined ---\n", folder, moved)
	}
	return nil
}
