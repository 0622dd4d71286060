package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hejijunhao/hierclass/internal/artifact"
	"github.com/hejijunhao/hierclass/internal/dataset"
	"github.com/hejijunhao/hierclass/internal/engine"
	"github.com/hejijunhao/hierclass/internal/runlog"
)

func addTrainingFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("data", "d", "", "labeled dataset (.xlsx, .ndjson, .jsonl) with text, category, family columns")
	cmd.Flags().Bool("no-progress", false, "hide the training progress bar")
	_ = cmd.MarkFlagRequired("data")
}

func trainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model from scratch and publish it as the base bundle",
		Long: `Train fits a fresh label codec and classifier on the dataset and publishes the
result as version "base". A store holds one base; use retrain afterwards.

Examples:
  hierclass train --data productos.xlsx
  hierclass train --data productos.ndjson --epochs 20 --encoder hashing`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTraining(cmd, "")
		},
	}
	addTrainingFlags(cmd)
	cmd.Flags().Int("epochs", 0, "number of epochs (default from config)")
	cmd.Flags().Int("batch-size", 0, "mini-batch size (default from config)")
	cmd.Flags().Float64("learning-rate", 0, "Adam learning rate (default from config)")
	cmd.Flags().Float64("penalty", 0, "hierarchy penalty weight (default from config)")

	_ = v.BindPFlag("training.num_epochs", cmd.Flags().Lookup("epochs"))
	_ = v.BindPFlag("training.batch_size", cmd.Flags().Lookup("batch-size"))
	_ = v.BindPFlag("training.learning_rate", cmd.Flags().Lookup("learning-rate"))
	_ = v.BindPFlag("training.hierarchy_penalty_weight", cmd.Flags().Lookup("penalty"))
	return cmd
}

func retrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrain",
		Short: "Extend a published bundle with new data and publish retrain_vN",
		Long: `Retrain clones the base bundle's label codec, appends any new categories and
families, warm-starts from its parameters, and publishes the next retrain_vN.
Existing label indices never change.

Examples:
  hierclass retrain --data nuevos.xlsx              # extend the latest version
  hierclass retrain --data nuevos.xlsx --base base`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			base, _ := cmd.Flags().GetString("base")
			return runTraining(cmd, base)
		},
	}
	addTrainingFlags(cmd)
	cmd.Flags().String("base", engine.Latest, "version to extend")
	return cmd
}

// runTraining trains (base == "") or retrains and prints the published bundle.
func runTraining(cmd *cobra.Command, base string) error {
	ctx := cmd.Context()
	path, _ := cmd.Flags().GetString("data")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	records, err := dataset.LoadLabeled(path)
	if err != nil {
		return err
	}

	var progress io.Writer = os.Stderr
	if noProgress {
		progress = nil
	}
	eng, cleanup, err := openEngine(true, progress)
	if err != nil {
		return err
	}
	defer cleanup()

	var b *artifact.Bundle
	if cmd.Name() == "retrain" {
		b, err = eng.Retrain(ctx, records, base)
	} else {
		b, err = eng.Train(ctx, records)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), bundleSummary(b))
	return err
}

func bundleSummary(b *artifact.Bundle) string {
	m := b.Metrics
	evaluated := "holdout"
	if m.EvaluatedOnTraining {
		evaluated = "training set"
	}
	rows := [][]string{
		{"version", b.Version},
		{"base version", b.BaseVersion},
		{"run id", b.RunID},
		{"encoder", fmt.Sprintf("%s (dim %d)", b.Encoder.Name, b.Encoder.Dim)},
		{"categories / families", fmt.Sprintf("%d / %d", b.Codec.NumCategories(), b.Codec.NumFamilies())},
		{"evaluated on", fmt.Sprintf("%s (%d samples)", evaluated, m.Samples)},
		{"category accuracy", formatRate(m.CategoryAccuracy)},
		{"family accuracy", formatRate(m.FamilyAccuracy)},
		{"category macro F1", formatRate(m.CategoryMacroF1)},
		{"family macro F1", formatRate(m.FamilyMacroF1)},
		{"consistency", formatRate(m.ConsistencyRate)},
		{"final loss", strconv.FormatFloat(m.FinalLoss, 'f', 4, 64)},
	}
	return renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft})
}

func formatRate(r float64) string {
	return fmt.Sprintf("%.2f%%", r*100)
}

// openEngine opens the configured encoder, store, and (optionally) run ledger.
func openEngine(withLedger bool, progress io.Writer) (*engine.Engine, func(), error) {
	emb, err := cfg.OpenEncoder()
	if err != nil {
		return nil, nil, err
	}
	store, err := artifact.New(cfg.Store.Dir)
	if err != nil {
		emb.Close()
		return nil, nil, err
	}

	opts := []engine.Option{}
	if progress != nil {
		opts = append(opts, engine.WithProgress(progress))
	}
	var ledger *runlog.Ledger
	if withLedger {
		ledger, err = runlog.Open(cfg.Store.RunlogPath)
		if err != nil {
			emb.Close()
			return nil, nil, err
		}
		opts = append(opts, engine.WithLedger(ledger))
	}

	cleanup := func() {
		ledger.Close()
		emb.Close()
	}
	return engine.New(emb, store, cfg.Trainer(), opts...), cleanup, nil
}
