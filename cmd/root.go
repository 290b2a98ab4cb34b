package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Another0Noob/vault-downloader/internal/config"
	"github.com/Another0Noob/vault-downloader/internal/downloader"
	"github.com/Another0Noob/vault-downloader/internal/match"
)

var (
	cfgFile          string
	folders          []string
	sectionPriority  string
	noDetectExisting bool
	noPreScan        bool
	extractFiles     bool
	deleteDuplicates bool
	yesDelete        bool
	categorizeRating bool
	allowPrompt      bool
	verbose          bool
)

var rootCmd = &cobra.Command{
	Use:   "vault-downloader",
	Short: "Mirror a remote ROM vault into a local collection",
	Long: `vault-downloader walks the vault's catalog sections, skips titles that
already exist locally (matched by normalized and fuzzy filename comparison),
downloads the rest with polite rate limiting, and records progress in a JSON
file so interrupted runs resume where they left off.

The console system is auto-detected from each target folder's name (DS, PS1,
N64, ...).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDownload(cmd.Context())
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(
		&cfgFile,
		"config",
		"c",
		"",
		"path to ini config file",
	)
	rootCmd.PersistentFlags().StringArrayVarP(
		&folders,
		"folder",
		"f",
		nil,
		"target folder(s); repeatable (default: current directory)",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"debug logging",
	)

	rootCmd.Flags().StringVar(
		&sectionPriority,
		"section-priority",
		"",
		`comma-separated section order to process first (e.g. "D,L,C"); overrides resume`,
	)
	rootCmd.Flags().BoolVar(
		&noDetectExisting,
		"no-detect-existing",
		false,
		"do not detect local ROM files and skip them",
	)
	rootCmd.Flags().BoolVar(
		&noPreScan,
		"no-pre-scan",
		false,
		"do not pre-build the local file index (use per-item scans)",
	)
	rootCmd.Flags().BoolVar(
		&extractFiles,
		"extract-files",
		false,
		"extract zip archives after download (default: only DS extracts)",
	)
	rootCmd.Flags().BoolVar(
		&deleteDuplicates,
		"delete-duplicates",
		false,
		"quarantine redundant local files when a title matches several",
	)
	rootCmd.Flags().BoolVar(
		&yesDelete,
		"yes-delete",
		false,
		"auto-confirm duplicate quarantining",
	)
	rootCmd.Flags().BoolVar(
		&categorizeRating,
		"categorize-by-rating",
		false,
		"move downloads into stars/<n> folders by the site's community rating",
	)
	rootCmd.Flags().BoolVar(
		&allowPrompt,
		"prompt",
		false,
		"allow interactive prompts",
	)
}

func loadConfig() (config.Config, error) {
	if cfgFile == "" {
		return config.Default(), nil
	}
	return config.Load(cfgFile)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func targetFolders() ([]string, error) {
	if len(folders) > 0 {
		return folders, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	return []string{wd}, nil
}

func runDownload(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if sectionPriority != "" {
		cfg.SectionPriority = nil
		for _, s := range strings.Split(sectionPriority, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.SectionPriority = append(cfg.SectionPriority, strings.ToUpper(s))
			}
		}
	}
	if noDetectExisting {
		cfg.DetectExisting = false
	}
	if noPreScan {
		cfg.PreScan = false
	}
	if extractFiles {
		v := true
		cfg.ExtractFiles = &v
	}
	if deleteDuplicates {
		cfg.DeleteDuplicates = true
	}
	if yesDelete {
		cfg.AutoConfirmDelete = true
	}
	if categorizeRating {
		cfg.CategorizeByRating = true
	}

	targets, err := targetFolders()
	if err != nil {
		return err
	}

	logger := newLogger()
	registry := downloader.NewRegistry()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, folder := range targets {
		folder, err := filepath.Abs(folder)
		if err != nil {
			return fmt.Errorf("resolve folder: %w", err)
		}

		system, ok := downloader.DetectConsole(folder)
		if !ok {
			fmt.Printf("Skipping %s: cannot detect console from folder name.\n", folder)
			fmt.Println("Rename the folder to a known system (DS, PS1, N64, GBA, ...).")
			continue
		}
		fmt.Printf("--- %s (%s) ---\n", folder, system)

		// Downloads land in a ROMs subfolder when we can create one.
		root := filepath.Join(folder, "ROMs")
		if err := os.MkdirAll(root, 0o755); err != nil {
			root = folder
		}

		d, err := registry.GetOrCreate(root, system, cfg, downloader.Options{
			Logger: logger,
			Prompt: duplicatePrompt(),
		})
		if err != nil {
			return err
		}

		sum, runErr := d.Run(ctx)
		fmt.Printf("Processed %d titles, downloaded %d new.\n", sum.Processed, sum.Downloaded)
		fmt.Printf("Total completed: %d, failed: %d, elapsed: %s.\n",
			sum.Completed, sum.Failed, sum.Elapsed.Round(time.Second))
		if runErr != nil {
			fmt.Println("Run interrupted; progress is saved, rerun to resume.")
			return runErr
		}
	}
	return nil
}

// duplicatePrompt asks on stdin whether to quarantine duplicate files. In
// non-interactive runs it declines everything.
func duplicatePrompt() func(keep string, extras []string) match.Answer {
	if !allowPrompt {
		return nil
	}
	reader := bufio.NewReader(os.Stdin)
	return func(keep string, extras []string) match.Answer {
		fmt.Printf("Keep %s and quarantine %d duplicate(s)? [y/N/a] ", filepath.Base(keep), len(extras))
		line, err := reader.ReadString('\n')
		if err != nil {
			return match.No
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return match.Yes
		case "a", "all":
			return match.YesToAll
		default:
			return match.No
		}
	}
}
