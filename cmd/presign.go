package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/halal-lens/filings-cli/internal/model"
)

var presignCmd = &cobra.Command{
	Use:   "presign",
	Short: "Mint a time-limited download URL for a stored filing PDF",
	Long: `Mint a time-limited download URL for a stored filing PDF.

Looks up the announcement by source, symbol, and filing date, and signs a
URL for its archived PDF. The link expires after minio.presign_expiry_hours
(24 by default).`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("presign"); err != nil {
			return err
		}

		src, _ := cmd.Flags().GetString("source")
		symbol, _ := cmd.Flags().GetString("symbol")
		dateStr, _ := cmd.Flags().GetString("date")

		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return eris.Wrapf(err, "presign: parse --date %q", dateStr)
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		ann, err := st.GetAnnouncement(ctx, model.FilingKey{
			Source:     src,
			Symbol:     symbol,
			FilingDate: date,
		})
		if err != nil {
			return eris.Wrap(err, "presign")
		}
		if ann == nil {
			return eris.Errorf("presign: no announcement for %s %s filed %s", src, symbol, dateStr)
		}
		if !ann.PDFStored || ann.PDFPath == "" {
			return eris.Errorf("presign: no stored PDF for %s %s filed %s", src, symbol, dateStr)
		}

		objStore, err := openObjectStore()
		if err != nil {
			return err
		}

		expiry := time.Duration(cfg.MinIO.PresignExpiryHours) * time.Hour
		url, err := objStore.PresignedGet(ctx, ann.PDFPath, expiry)
		if err != nil {
			return eris.Wrap(err, "presign")
		}

		fmt.Println(url)
		return nil
	},
}

func init() {
	presignCmd.Flags().String("source", "bse", "exchange the filing came from")
	presignCmd.Flags().String("symbol", "", "company symbol (required)")
	presignCmd.Flags().String("date", "", "filing date, YYYY-MM-DD (required)")
	_ = presignCmd.MarkFlagRequired("symbol")
	_ = presignCmd.MarkFlagRequired("date")
	rootCmd.AddCommand(presignCmd)
}
