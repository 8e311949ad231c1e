// Command importctl runs catalog imports from the command line, bypassing the
// HTTP surface and the queue.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"catalog-import-service/internal/config"
	"catalog-import-service/internal/importer"
	"catalog-import-service/internal/jobs"
	"catalog-import-service/internal/repository"
	"catalog-import-service/internal/services"
	"catalog-import-service/internal/storage"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	rulesFile string
	markers   []string
	operator  string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "importctl",
	Short: "Import accounting spreadsheets into the product catalog",
	Long: `importctl loads an accounting export, maps its Persian headers, classifies
every product and upserts categories and products, recording the run in the
same ledger the HTTP service uses.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rulesFile, "rules", "", "classifier rules file (defaults to CLASSIFIER_RULES_FILE or the shipped rules)")
	rootCmd.PersistentFlags().StringSliceVar(&markers, "header-marker", nil, "header row marker, repeatable (defaults to IMPORT_HEADER_MARKERS)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd.Flags().StringVar(&operator, "operator", "importctl", "user recorded as the uploader")
	errorsCmd.Flags().Int("attempt", 0, "attempt to list (defaults to the latest)")
	recentCmd.Flags().Int("limit", 10, "number of runs to show")

	rootCmd.AddCommand(runCmd, retryCmd, recentCmd, errorsCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <file.xlsx>",
	Short: "Import a spreadsheet and wait for the run to finish",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd.Context())
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}

		run, err := svc.Upload(cmd.Context(), services.UploadInput{
			FileName:   info.Name(),
			Size:       info.Size(),
			Content:    f,
			UploadedBy: operator,
		})
		if err != nil {
			return err
		}
		return printJSON(run)
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <run-id>",
	Short: "Re-run a failed import from scratch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid run id: %w", err)
		}
		svc, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		run, err := svc.Retry(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(run)
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the newest import runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		svc, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		runs, err := svc.RecentRuns(cmd.Context(), limit)
		if err != nil {
			return err
		}
		for _, run := range runs {
			fmt.Printf("%s  %-10s  %4d/%-4d rows ok  attempt %d  %s\n",
				run.ID, run.Status, run.SuccessfulRows, run.TotalRows, run.Attempt, run.FileName)
		}
		return nil
	},
}

var errorsCmd = &cobra.Command{
	Use:   "errors <run-id>",
	Short: "Show the row errors of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid run id: %w", err)
		}
		attempt, _ := cmd.Flags().GetInt("attempt")
		svc, err := newService(cmd.Context())
		if err != nil {
			return err
		}
		rowErrors, attempt, err := svc.RowErrors(cmd.Context(), id, attempt)
		if err != nil {
			return err
		}
		fmt.Printf("attempt %d: %d errors\n", attempt, len(rowErrors))
		for _, e := range rowErrors {
			sku := ""
			if e.SKU != nil {
				sku = *e.SKU
			}
			fmt.Printf("row %-5d %-20s %-12s %s\n", e.RowNumber, e.Kind, sku, e.Message)
		}
		return nil
	},
}

// newService wires the same pipeline as the server, executing runs inline
func newService(ctx context.Context) (*services.ImportService, error) {
	cfg := config.Load()
	if rulesFile != "" {
		cfg.ClassifierRulesFile = rulesFile
	}
	if len(markers) > 0 {
		cfg.HeaderMarkers = markers
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(os.Stderr)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	fileStore, err := storage.New(ctx, storage.Options{
		Dir:    cfg.StorageDir,
		Bucket: cfg.S3Bucket,
		Prefix: cfg.S3Prefix,
		Region: cfg.AWSRegion,
	})
	if err != nil {
		return nil, err
	}
	classifier, err := importer.LoadClassifier(cfg.ClassifierRulesFile)
	if err != nil {
		return nil, err
	}

	repo := repository.NewImportRepository(db, nil)
	pipeline := importer.NewPipeline(repo, fileStore, classifier, logger, importer.PipelineOptions{HeaderMarkers: cfg.HeaderMarkers})
	dispatcher := jobs.NewDispatcher(nil, repo, pipeline, logger)
	return services.NewImportService(repo, fileStore, dispatcher, cfg.MaxUploadBytes, logger), nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
