package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hejijunhao/hierclass/internal/artifact"
	"github.com/hejijunhao/hierclass/internal/runlog"
)

func versionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List published bundles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := artifact.New(cfg.Store.Dir)
			if err != nil {
				return err
			}
			versions, err := store.Versions()
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "no bundles in %s\n", store.Dir())
				return err
			}

			rows := make([][]string, 0, len(versions))
			for _, version := range versions {
				b, err := store.Load(version)
				if err != nil {
					return err
				}
				rows = append(rows, []string{
					b.Version,
					b.BaseVersion,
					b.CreatedAt.Local().Format(time.DateTime),
					strconv.Itoa(b.Codec.NumCategories()),
					strconv.Itoa(b.Codec.NumFamilies()),
					formatRate(b.Metrics.CategoryAccuracy),
					formatRate(b.Metrics.FamilyAccuracy),
					b.Encoder.Name,
				})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Version", "Base", "Created", "Categories", "Families", "Cat Acc", "Fam Acc", "Encoder"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
			))
			return err
		},
	}
}

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded training runs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			ledger, err := runlog.Open(cfg.Store.RunlogPath)
			if err != nil {
				return err
			}
			defer ledger.Close()

			runs, err := ledger.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				duration := ""
				if !r.FinishedAt.IsZero() {
					duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
				}
				accuracy := ""
				if r.Metrics != nil {
					accuracy = formatRate(r.Metrics.FamilyAccuracy)
				}
				rows = append(rows, []string{
					r.ID[:8],
					string(r.Kind),
					string(r.Status),
					r.BaseVersion,
					r.Version,
					r.StartedAt.Local().Format(time.DateTime),
					duration,
					strconv.Itoa(r.Records),
					accuracy,
					r.Error,
				})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Run", "Kind", "Status", "Base", "Version", "Started", "Duration", "Records", "Fam Acc", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			return err
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "maximum runs to show (0 = all)")
	return cmd
}
