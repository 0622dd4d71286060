package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hejijunhao/hierclass/internal/dataset"
	"github.com/hejijunhao/hierclass/internal/output"
	"github.com/hejijunhao/hierclass/internal/output/file"
	"github.com/hejijunhao/hierclass/internal/output/multi"
	"github.com/hejijunhao/hierclass/internal/output/stdout"
	"github.com/hejijunhao/hierclass/internal/output/xlsx"
	"github.com/hejijunhao/hierclass/internal/pipeline"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify records and split them into classified/unclassified tables",
		Long: `Classify loads a published bundle, predicts a category and a legal family for
every record, and writes two tables: records whose confidence reaches the
threshold, and the rest for manual review. Nothing is written if any record
fails.

Examples:
  hierclass classify --input pendientes.xlsx
  hierclass classify --input pendientes.ndjson --version retrain_v2 --threshold 0.9
  hierclass classify --input pendientes.xlsx --format xlsx,stdout`,
		RunE: runClassify,
	}

	cmd.Flags().StringP("input", "i", "", "records to classify (.xlsx, .ndjson, .jsonl) with a text column")
	cmd.Flags().String("version", "", "bundle version (default: latest)")
	cmd.Flags().Float64("threshold", 0, "confidence threshold in [0,1] (default from config)")
	cmd.Flags().StringP("out-dir", "o", "", "directory for output files")
	cmd.Flags().StringSlice("format", nil, "outputs: xlsx, ndjson, stdout")
	cmd.Flags().String("verbosity", "", "output columns: minimal, full")
	cmd.Flags().Int("workers", 0, "concurrent encoder batches")
	cmd.Flags().Bool("json", false, "print the stdout output as JSON instead of tables")
	_ = cmd.MarkFlagRequired("input")

	_ = v.BindPFlag("inference.version", cmd.Flags().Lookup("version"))
	_ = v.BindPFlag("inference.classification_threshold", cmd.Flags().Lookup("threshold"))
	_ = v.BindPFlag("inference.workers", cmd.Flags().Lookup("workers"))
	_ = v.BindPFlag("output.dir", cmd.Flags().Lookup("out-dir"))
	_ = v.BindPFlag("output.formats", cmd.Flags().Lookup("format"))
	_ = v.BindPFlag("output.verbosity", cmd.Flags().Lookup("verbosity"))
	return cmd
}

func runClassify(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	path, _ := cmd.Flags().GetString("input")
	asJSON, _ := cmd.Flags().GetBool("json")

	records, err := dataset.LoadInputs(path)
	if err != nil {
		return err
	}

	writers, files, err := buildWriters(cmd, asJSON)
	if err != nil {
		return err
	}

	eng, cleanup, err := openEngine(false, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	p, err := eng.Pipeline(cfg.Inference.Version, cfg.Inference.ClassificationThreshold,
		pipeline.WithBatchSize(cfg.Inference.BatchSize),
		pipeline.WithWorkers(cfg.Inference.Workers),
		pipeline.WithOutput(multi.New(writers...)),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			slog.Error("Failed to close outputs", "error", err)
		}
	}()

	part, err := p.Run(ctx, records)
	if err != nil {
		return err
	}
	slog.Info("classification complete",
		"version", part.Version,
		"threshold", part.Threshold,
		"classified", len(part.Classified),
		"unclassified", len(part.Unclassified),
		"files", files(),
	)
	return nil
}

// buildWriters creates the configured outputs. The returned func lists the files
// written so far.
func buildWriters(cmd *cobra.Command, asJSON bool) ([]output.Writer, func() []string, error) {
	verbosity, err := output.ParseVerbosity(cfg.Output.Verbosity)
	if err != nil {
		return nil, nil, err
	}

	var (
		writers []output.Writer
		listers []interface{ Files() []string }
	)
	for _, f := range cfg.Output.Formats {
		switch f {
		case "xlsx":
			w, err := xlsx.New(cfg.Output.Dir, verbosity)
			if err != nil {
				return nil, nil, err
			}
			writers = append(writers, w)
			listers = append(listers, w)
		case "ndjson":
			w, err := file.New(cfg.Output.Dir, verbosity)
			if err != nil {
				return nil, nil, err
			}
			writers = append(writers, w)
			listers = append(listers, w)
		case "stdout":
			format := stdout.Table
			if asJSON {
				format = stdout.JSON
			}
			writers = append(writers, stdout.New(verbosity, format, stdout.WithWriter(cmd.OutOrStdout())))
		}
	}

	files := func() []string {
		var out []string
		for _, l := range listers {
			out = append(out, l.Files()...)
		}
		return out
	}
	return writers, files, nil
}
