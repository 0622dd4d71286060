package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hejijunhao/hierclass/internal/curation"
	"github.com/hejijunhao/hierclass/internal/dataset"
)

func curateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "curate",
		Short: "Drop keyword-matched rows from a dataset and inspect word frequencies",
		Long: `Curate removes the rows whose column matches the given words and writes the
remaining rows to --out. With --top it prints the most frequent words of the
result, which helps choose the next words to drop.

Examples:
  hierclass curate --data productos.xlsx --top 20
  hierclass curate --data productos.xlsx --drop muestra,prueba --out limpio.xlsx
  hierclass curate --data productos.xlsx --drop "cable usb" --exact --except adaptador --out limpio.xlsx`,
		RunE: runCurate,
	}
	cmd.Flags().StringP("data", "d", "", "dataset to curate (.xlsx, .ndjson, .jsonl)")
	cmd.Flags().StringP("out", "o", "", "where to write the curated dataset")
	cmd.Flags().String("id-column", "id", "column identifying rows")
	cmd.Flags().String("text-column", "text", "column analysed by --top")
	cmd.Flags().String("column", "", "column matched by --drop (default: --text-column)")
	cmd.Flags().StringSlice("drop", nil, "drop rows containing these words")
	cmd.Flags().StringSlice("except", nil, "keep matched rows that also contain these words")
	cmd.Flags().String("mode", "or", "combine --drop words with or/and")
	cmd.Flags().Bool("exact", false, "match whole words only")
	cmd.Flags().Bool("case-sensitive", false, "match case exactly")
	cmd.Flags().Int("top", 0, "print the N most frequent words after curation")
	cmd.Flags().StringSlice("ignore", nil, "words left out of --top")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func runCurate(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	path, _ := flags.GetString("data")
	out, _ := flags.GetString("out")
	idCol, _ := flags.GetString("id-column")
	textCol, _ := flags.GetString("text-column")
	column, _ := flags.GetString("column")
	drop, _ := flags.GetStringSlice("drop")
	except, _ := flags.GetStringSlice("except")
	modeFlag, _ := flags.GetString("mode")
	exact, _ := flags.GetBool("exact")
	caseSensitive, _ := flags.GetBool("case-sensitive")
	top, _ := flags.GetInt("top")
	ignore, _ := flags.GetStringSlice("ignore")

	mode, ok := curation.ParseMode(modeFlag)
	if !ok {
		return fmt.Errorf("invalid --mode %q (want or, and)", modeFlag)
	}
	if column == "" {
		column = textCol
	}

	t, err := dataset.ReadTable(path)
	if err != nil {
		return err
	}
	m, err := curation.New(t, idCol, textCol)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if len(drop) > 0 {
		opts := curation.Options{Mode: mode, CaseSensitive: caseSensitive, ExactMatch: exact}
		if _, err := m.FilterByWords("drop", column, drop, opts); err != nil {
			return err
		}
		if len(except) > 0 {
			if err := m.Exclude("drop", except); err != nil {
				return err
			}
		}
		removed, err := m.Apply("drop", false)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "removed %d of %d rows, %d remain\n",
			removed, len(m.Original().Rows), len(m.Current().Rows)); err != nil {
			return err
		}
	}

	if top > 0 {
		words, err := m.TopWords(curation.Principal, top, ignore)
		if err != nil {
			return err
		}
		rows := make([][]string, len(words))
		for i, wc := range words {
			rows[i] = []string{strconv.Itoa(i + 1), wc.Word, strconv.Itoa(wc.Count)}
		}
		if _, err := fmt.Fprintln(w, renderTable([]string{"#", "Word", "Count"}, rows,
			[]columnAlignment{alignRight, alignLeft, alignRight})); err != nil {
			return err
		}
	}

	if out != "" {
		return dataset.WriteTable(out, m.Current())
	}
	return nil
}
