package commands

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vogtb/go-spreadsheet/internal/config"
	"github.com/vogtb/go-spreadsheet/internal/logging"
	"github.com/vogtb/go-spreadsheet/packages/persist"
	"github.com/vogtb/go-spreadsheet/packages/spreadsheet"
)

// app carries the state shared by every subcommand once the root command
// has loaded the configuration
type app struct {
	configFile string
	file       string
	logLevel   string

	cfg     *config.Config
	logger  *logrus.Logger
	cleanup func()
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{})
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "spreadsheet",
		Short:         "Evaluate and edit formula spreadsheets",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file path (default ./spreadsheet.yaml or $HOME/.spreadsheet/)")
	flags.StringVarP(&a.file, "file", "f", "", "sheet location (default storage.path)")
	flags.StringVar(&a.logLevel, "log-level", "", "override logger.level")

	rootCmd.AddCommand(
		newEvalCommand(a),
		newParseCommand(),
		newGetCommand(a),
		newSetCommand(a),
		newShowCommand(a),
		newCheckCommand(a),
		newConvertCommand(a),
		newWatchCommand(a),
		newConsoleCommand(a),
	)

	// cobra skips the post-run hooks when RunE fails, so the logger is
	// closed from inside each RunE instead
	for _, sub := range rootCmd.Commands() {
		if run := sub.RunE; run != nil {
			sub.RunE = func(cmd *cobra.Command, args []string) error {
				defer a.close()
				return run(cmd, args)
			}
		}
	}

	return rootCmd
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(a.configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.Logger.Level = a.logLevel
	}

	logger, cleanup, err := logging.New(cfg.Logger)
	if err != nil {
		return err
	}
	if cfg.Logger.Output == "stderr" {
		logger.SetOutput(cmd.ErrOrStderr())
	}

	a.cfg, a.logger, a.cleanup = cfg, logger, cleanup
	return nil
}

func (a *app) close() {
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
}

func (a *app) sheetOptions() []spreadsheet.SheetOption {
	return []spreadsheet.SheetOption{
		spreadsheet.WithSheetLogger(a.logger),
		spreadsheet.WithSheetMaxDepth(a.cfg.Engine.MaxDepth),
		spreadsheet.WithLenientAddresses(a.cfg.Engine.LenientAddresses),
		spreadsheet.WithFormulaCacheSize(a.cfg.Engine.FormulaCacheSize),
	}
}

// openStore opens the store for --file, or storage.path when unset
func (a *app) openStore(ctx context.Context) (persist.Store, error) {
	return persist.Open(ctx, a.cfg.Storage, a.file, a.logger)
}

// newSheet wraps ws with the configured engine options
func (a *app) newSheet(ws *spreadsheet.Worksheet) *spreadsheet.Spreadsheet {
	return spreadsheet.NewSpreadsheetFrom(ws, a.sheetOptions()...)
}

// loadSheet opens the store and loads it; nothing saved yet is an empty
// sheet. the caller closes the store.
func (a *app) loadSheet(ctx context.Context) (*spreadsheet.Spreadsheet, persist.Store, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	ws, err := persist.LoadOrEmpty(ctx, store)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return a.newSheet(ws), store, nil
}

// readSheet loads the sheet and closes the store straight away
func (a *app) readSheet(ctx context.Context) (*spreadsheet.Spreadsheet, error) {
	sheet, store, err := a.loadSheet(ctx)
	if err != nil {
		return nil, err
	}
	return sheet, store.Close()
}
