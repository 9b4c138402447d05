package cmd

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/meizi0715/bdt-v1.5/internal/app"
	"github.com/meizi0715/bdt-v1.5/internal/clock/system"
)

// newHolidaysCmd prints the days counted as holidays besides weekends.
func newHolidaysCmd() *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "holidays",
		Short: "List national and configured holidays for a year",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			clock, err := system.NewInZone(e.cfg.Site.Timezone)
			if err != nil {
				return err
			}
			cal, err := app.NewHolidays(e.cfg, clock)
			if err != nil {
				return err
			}
			if year == 0 {
				year = clock.Now().Year()
			}

			t := newTable(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Date", "Weekday", "Name"})
			for _, h := range cal.Holidays(year) {
				t.AppendRow(table.Row{h.Date.Format("2006-01-02"), h.Date.Weekday().String()[:3], h.Name})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "year to list (default current year)")
	return cmd
}
