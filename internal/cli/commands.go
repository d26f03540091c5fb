package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/cuongbtq/offer-importer/internal/app"
	"github.com/cuongbtq/offer-importer/internal/config"
	"github.com/cuongbtq/offer-importer/internal/importer"
	"github.com/cuongbtq/offer-importer/internal/storage"
	"github.com/spf13/cobra"
)

// runtime is what every command needs once configuration is loaded.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *storage.Storage
	importer *importer.Importer
	close    func()
}

func setup(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	baseLogger, err := app.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	appLogger := baseLogger.With(slog.String("service", "offerctl"))

	dbClient, err := app.NewPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		_ = appLogger.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	locker, closeLocker, err := app.NewLocker(ctx, &cfg.Redis, appLogger.Logger)
	if err != nil {
		dbClient.Close()
		_ = appLogger.Close()
		return nil, fmt.Errorf("failed to initialize lock: %w", err)
	}

	store := storage.NewStorage(dbClient.GetDB(), appLogger.Logger)
	return &runtime{
		cfg:      cfg,
		logger:   appLogger.Logger,
		store:    store,
		importer: app.NewImporter(&cfg.Importer, store, locker, appLogger.Logger),
		close: func() {
			_ = closeLocker()
			dbClient.Close()
			_ = appLogger.Close()
		},
	}, nil
}

func newImportCmd(configPath *string) *cobra.Command {
	var connectionID int64
	var batchSize int

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Fetch, map and upsert every offer of a connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.close()

			conn, err := rt.store.GetConnection(cmd.Context(), connectionID)
			if err != nil {
				return err
			}
			if batchSize <= 0 {
				batchSize = rt.cfg.Importer.BatchSize
			}

			result, err := rt.importer.Process(cmd.Context(), conn, batchSize)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().Int64VarP(&connectionID, "connection", "c", 0, "Connection id")
	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", 0, "Offers per upsert transaction (default from config)")
	_ = cmd.MarkFlagRequired("connection")

	return cmd
}

func newReprocessCmd(configPath *string) *cobra.Command {
	var connectionID int64

	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Re-map the cached provider sample of a connection with its stored mappings",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.close()

			conn, err := rt.store.GetConnection(cmd.Context(), connectionID)
			if err != nil {
				return err
			}

			result, err := rt.importer.ReprocessFromCache(cmd.Context(), conn, nil, rt.cfg.Importer.BatchSize)
			if err != nil {
				return fmt.Errorf("reprocess failed: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().Int64VarP(&connectionID, "connection", "c", 0, "Connection id")
	_ = cmd.MarkFlagRequired("connection")

	return cmd
}

func newDetectCmd(configPath *string) *cobra.Command {
	var connectionID int64
	var suggest bool

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Print the fields of the first offer the connection returns",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.close()

			conn, err := rt.store.GetConnection(cmd.Context(), connectionID)
			if err != nil {
				return err
			}

			if suggest {
				mappings, err := rt.importer.SuggestMappings(cmd.Context(), conn)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), mappings)
			}

			fields, err := rt.importer.DetectFields(cmd.Context(), conn)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), fields)
		},
	}

	cmd.Flags().Int64VarP(&connectionID, "connection", "c", 0, "Connection id")
	cmd.Flags().BoolVar(&suggest, "suggest", false, "Print suggested mappings instead of fields")
	_ = cmd.MarkFlagRequired("connection")

	return cmd
}

func newSweepCmd(configPath *string) *cobra.Command {
	var connectionID int64

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark active offers that reached their goal or budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.close()

			var scope *int64
			if cmd.Flags().Changed("connection") {
				scope = &connectionID
			}

			stats, err := rt.store.UpdateStatusByGoals(cmd.Context(), scope)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}

	cmd.Flags().Int64VarP(&connectionID, "connection", "c", 0, "Limit the sweep to one connection")

	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
