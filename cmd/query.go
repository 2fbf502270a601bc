package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/halal-lens/filings-cli/internal/model"
	"github.com/halal-lens/filings-cli/internal/store"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Inspect stored filings",
}

var queryAnnouncementsCmd = &cobra.Command{
	Use:   "announcements",
	Short: "List the most recent announcements",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("query"); err != nil {
			return err
		}

		conf, err := parseConfidence(cmd)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		anns, err := st.LatestAnnouncements(ctx, limit, conf)
		if err != nil {
			return eris.Wrap(err, "query announcements")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(anns)
		}
		if len(anns) == 0 {
			fmt.Fprintln(os.Stderr, "No announcements stored. Run 'filings crawl run' first.")
			return nil
		}
		formatAnnouncements(os.Stdout, anns)
		return nil
	},
}

var queryFinancialsCmd = &cobra.Command{
	Use:   "financials",
	Short: "List extracted financial snapshots",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("query"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		symbol, _ := cmd.Flags().GetString("symbol")
		limit, _ := cmd.Flags().GetInt("limit")
		rows, err := st.FinancialData(ctx, symbol, limit)
		if err != nil {
			return eris.Wrap(err, "query financials")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(rows)
		}
		if len(rows) == 0 {
			fmt.Fprintln(os.Stderr, "No financial snapshots stored.")
			return nil
		}
		formatFinancials(os.Stdout, rows)
		return nil
	},
}

var queryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate counts over the stored filings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("query"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.Stats(ctx)
		if err != nil {
			return eris.Wrap(err, "query stats")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(stats)
		}
		formatStats(os.Stdout, stats)
		return nil
	},
}

func init() {
	queryAnnouncementsCmd.Flags().Int("limit", 20, "max rows to display")
	queryAnnouncementsCmd.Flags().String("confidence", "", "filter by confidence (HIGH, MEDIUM, LOW)")
	queryAnnouncementsCmd.Flags().Bool("json", false, "emit JSON instead of a table")

	queryFinancialsCmd.Flags().String("symbol", "", "restrict to one company symbol")
	queryFinancialsCmd.Flags().Int("limit", 20, "max rows to display")
	queryFinancialsCmd.Flags().Bool("json", false, "emit JSON instead of a table")

	queryStatsCmd.Flags().Bool("json", false, "emit JSON instead of text")

	queryCmd.AddCommand(queryAnnouncementsCmd)
	queryCmd.AddCommand(queryFinancialsCmd)
	queryCmd.AddCommand(queryStatsCmd)
	rootCmd.AddCommand(queryCmd)
}

func parseConfidence(cmd *cobra.Command) (model.Confidence, error) {
	raw, _ := cmd.Flags().GetString("confidence")
	return parseConfidenceValue(raw)
}

// parseConfidenceValue normalizes a confidence filter. Empty means no filter.
func parseConfidenceValue(raw string) (model.Confidence, error) {
	if raw == "" {
		return "", nil
	}
	switch c := model.Confidence(strings.ToUpper(raw)); c {
	case model.ConfidenceHigh, model.ConfidenceMedium, model.ConfidenceLow:
		return c, nil
	default:
		return "", eris.Errorf("unknown confidence %q (want HIGH, MEDIUM, or LOW)", raw)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatAnnouncements(out io.Writer, anns []model.Announcement) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATE\tSOURCE\tSYMBOL\tCOMPANY\tCONF\tFIN\tPDF\tHEADLINE")

	for _, a := range anns {
		fin := ""
		if a.Financial {
			fin = "yes"
		}
		pdf := ""
		if a.PDFStored {
			pdf = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.FilingDate.Format("2006-01-02"),
			a.Source,
			a.Symbol,
			truncate(a.CompanyName, 24),
			a.Confidence,
			fin,
			pdf,
			truncate(a.Headline, 60),
		)
	}
	_ = w.Flush()
}

func formatFinancials(out io.Writer, rows []store.FinancialRow) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATE\tSOURCE\tSYMBOL\tCOMPANY\tQUARTER\tFY END\tAUDIT\tDEBT\tREVENUE")

	for _, r := range rows {
		fyEnd := "-"
		if r.FYEnd != nil {
			fyEnd = r.FYEnd.Format("2006-01-02")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.FilingDate.Format("2006-01-02"),
			r.Source,
			r.Symbol,
			truncate(r.CompanyName, 24),
			orDash(r.Quarter),
			fyEnd,
			orDash(r.AuditStatus),
			formatAmount(r.TotalDebt),
			formatAmount(r.Revenue),
		)
	}
	_ = w.Flush()
}

func formatStats(out io.Writer, stats *store.Stats) {
	latest := "-"
	if stats.LatestFiling != nil {
		latest = stats.LatestFiling.Format("2006-01-02")
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Announcements:\t%d\n", stats.Announcements)
	_, _ = fmt.Fprintf(w, "  high confidence:\t%d\n", stats.HighConfidence)
	_, _ = fmt.Fprintf(w, "  financial:\t%d\n", stats.Financial)
	_, _ = fmt.Fprintf(w, "  with stored PDF:\t%d\n", stats.PDFsStored)
	_, _ = fmt.Fprintf(w, "  unique companies:\t%d\n", stats.UniqueCompanies)
	_, _ = fmt.Fprintf(w, "  latest filing:\t%s\n", latest)
	_, _ = fmt.Fprintf(w, "Snapshots:\t%d\n", stats.Snapshots)
	_, _ = fmt.Fprintf(w, "  with debt data:\t%d\n", stats.WithDebtData)
	_, _ = fmt.Fprintf(w, "  with revenue data:\t%d\n", stats.WithRevenueData)
	_, _ = fmt.Fprintf(w, "  quarters covered:\t%d\n", stats.QuartersCovered)
	_ = w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatAmount renders a crore-denominated figure, or a dash when absent.
func formatAmount(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}
