package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/ipampa/internal/admin"
	"github.com/JonMunkholm/ipampa/internal/core"
)

func newRefreshCmd(open opener) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Replace the stored indices with the current source content",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := app.Service.Refresh(cmd.Context())
			if err != nil {
				return userError(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Successfully refreshed %d IPAMPA indices (%d values, %d years) in %s\n",
				res.Admitted, res.Values, len(res.Years), res.Duration.Round(time.Millisecond))
			for _, kind := range []core.DropKind{core.DropMalformedRow, core.DropMissingField, core.DropFamilyMismatch, core.DropInvalidCell} {
				if n := res.Dropped[kind]; n > 0 {
					fmt.Fprintf(out, "  %s: %d\n", kind, n)
				}
			}
			if verbose {
				for _, d := range res.Diagnostics() {
					fmt.Fprintf(out, "  %s\n", d)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print every dropped row and cell")
	return cmd
}

func newExportCmd(open opener) *cobra.Command {
	var query, format, output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the stored indices as a wide table",
		Long: `Export writes one row per index and one column per year.

Example:
  ipampactl export --query engrais --format xlsx --output engrais.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := core.ParseExportFormat(format)
			if err != nil {
				return err
			}

			app, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			body, err := app.Service.Export(cmd.Context(), f, query)
			if err != nil {
				return userError(err)
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			if err := os.WriteFile(output, body, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(body), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Keep indices whose label, idBank or period contains this text")
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "Output format: csv or xlsx")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func newListCmd(open opener) *cobra.Command {
	var query string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the stored indices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			ds, err := app.Service.ListIndices(cmd.Context())
			if err != nil {
				return userError(err)
			}
			ds = core.FilterDataset(ds, query)

			if asJSON {
				if ds == nil {
					ds = core.Dataset{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(ds)
			}
			return writeTable(cmd.OutOrStdout(), ds)
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Keep indices whose label, idBank or period contains this text")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the dataset as JSON")
	return cmd
}

// writeTable prints one line per series with its year span.
func writeTable(w io.Writer, ds core.Dataset) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tID BANK\tPERIOD\tYEARS\tVALUES")
	for _, s := range ds {
		span := core.MissingValueSentinel
		if n := len(s.Values); n > 0 {
			span = strconv.Itoa(s.Values[0].Year) + "-" + strconv.Itoa(s.Values[n-1].Year)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", s.Label, s.IDBank, s.Period, span, len(s.Values))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d indices\n", len(ds))
	return err
}

func newResetCmd(open opener) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every stored index and value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("reset deletes the whole dataset; pass --yes to confirm")
			}

			app, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			removed, err := admin.Reset(cmd.Context(), app.Store)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d indices\n", removed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	return cmd
}

// userError prefixes err with its support message and code.
func userError(err error) error {
	return fmt.Errorf("%s: %w", core.FormatUserError(err), err)
}
