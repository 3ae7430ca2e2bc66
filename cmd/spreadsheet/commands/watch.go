package commands

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vogtb/go-spreadsheet/internal/config"
)

// editors and the s2v writer replace the file in several steps; wait for
// the burst to settle before reloading
const watchDebounce = 100 * time.Millisecond

func newWatchCommand(a *app) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "watch [RANGE]",
		Short: "Re-render a range whenever the sheet file changes",
		Long: `Print a range (default: every used cell) and print it again each time the
sheet file is written. Only file based storage (s2v, xlsx) can be watched.
When a config file is in use, changes to its engine.* settings are applied
and the range is printed again. Stop with Ctrl-C.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			path := a.file
			if path == "" {
				path = a.cfg.Storage.Path
			}
			switch format := a.cfg.Storage.FormatFor(path); format {
			case config.FormatS2V, config.FormatXLSX:
			default:
				return fmt.Errorf("cannot watch %s storage: only s2v and xlsx files can be watched", format)
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			defer watcher.Close()

			// the directory is watched because saves replace the file
			if err := watcher.Add(filepath.Dir(path)); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}

			render := func() {
				sheet, err := a.readSheet(ctx)
				if err == nil {
					err = show(cmd.OutOrStdout(), sheet, args, raw, "table")
				}
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}
			render()

			// only the engine settings are swapped in; storage and logger stay
			reloads := make(chan *config.Config, 1)
			if a.cfg.Viper.ConfigFileUsed() != "" {
				config.Watch(a.cfg, func(next *config.Config) {
					select {
					case <-reloads:
					default:
					}
					reloads <- next
				}, func(err error) {
					a.logger.WithError(err).Warn("config reload failed")
				})
			}

			name := filepath.Clean(path)
			timer := time.NewTimer(watchDebounce)
			timer.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if filepath.Clean(event.Name) != name || (!event.Has(fsnotify.Write) && !event.Has(fsnotify.Create)) {
						continue
					}
					a.logger.WithFields(logrus.Fields{"path": event.Name, "op": event.Op.String()}).Debug("sheet file changed")
					timer.Reset(watchDebounce)
				case <-timer.C:
					render()
				case next := <-reloads:
					a.cfg.Engine = next.Engine
					a.logger.WithFields(logrus.Fields{
						"max_depth":          next.Engine.MaxDepth,
						"lenient_addresses":  next.Engine.LenientAddresses,
						"formula_cache_size": next.Engine.FormulaCacheSize,
					}).Info("engine settings reloaded")
					render()
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					if errors.Is(err, fsnotify.ErrEventOverflow) {
						timer.Reset(watchDebounce)
						continue
					}
					return fmt.Errorf("watch %s: %w", path, err)
				}
			}
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "show stored text instead of values")
	return cmd
}
