package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vogtb/go-spreadsheet/internal/config"
	"github.com/vogtb/go-spreadsheet/packages/persist"
)

func newConvertCommand(a *app) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "convert SOURCE TARGET",
		Short: "Copy a sheet between storage formats",
		Long: `Copy a sheet from SOURCE to TARGET. Formats are taken from --from/--to or
inferred from the file extensions (.s2v, .xlsx, .db/.sqlite). The redis format
uses storage.redis.* from the config; its location argument is ignored.`,
		Example: `  spreadsheet convert budget.s2v budget.xlsx
  spreadsheet convert budget.xlsx budget.db`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			src, err := a.openAs(ctx, from, args[0])
			if err != nil {
				return err
			}
			defer src.Close()
			ws, err := src.Load(ctx)
			if err != nil {
				return err
			}

			dst, err := a.openAs(ctx, to, args[1])
			if err != nil {
				return err
			}
			defer dst.Close()
			if err := dst.Save(ctx, ws); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Converted %d cells from %s to %s.\n", ws.Count(), src, dst)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "source format: s2v, xlsx, sqlite or redis")
	cmd.Flags().StringVar(&to, "to", "", "target format: s2v, xlsx, sqlite or redis")
	return cmd
}

// openAs opens path with an explicit format. storage.format and
// storage.sqlite.dsn are ignored so both ends of a conversion can differ.
func (a *app) openAs(ctx context.Context, format, path string) (persist.Store, error) {
	if format != "" && !config.IsStorageFormat(format) {
		return nil, fmt.Errorf("unknown storage format %q", format)
	}
	storage := *a.cfg.Storage
	storage.Format = format
	storage.SQLite = &config.SQLite{}
	return persist.Open(ctx, &storage, path, a.logger)
}
