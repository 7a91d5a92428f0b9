package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/dunamismax/pixelbatch/internal/config"
	"github.com/dunamismax/pixelbatch/internal/domain"
	applog "github.com/dunamismax/pixelbatch/internal/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newHistoryCommand(root *rootOptions) *cobra.Command {
	var q domain.HistoryQuery
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently processed files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			logger := applog.NewWithWriter(cfg.Environment, cmd.ErrOrStderr())
			st, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.Recent(cmd.Context(), q)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tUSER\tORIGINAL\tOUTPUT\tSIZE\tFORMAT")
			for _, e := range entries {
				user := e.UserID
				if user == "" {
					user = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%dx%d\t%s\n",
					humanize.Time(e.CreatedAt), user, e.OriginalName, e.OutputName, e.Width, e.Height, e.Format)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&q.Limit, "limit", "n", 0, "maximum rows (default 50)")
	cmd.Flags().StringVar(&q.UserID, "user", "", "only show rows for this user id")
	return cmd
}
