// Command hierclass trains, versions, and applies hierarchical
// category/family classifiers for short product descriptions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hejijunhao/hierclass/internal/config"
	"github.com/hejijunhao/hierclass/internal/logging"
)

var (
	cfgFile string
	v       = config.New()
	cfg     *config.Config

	rootCmd = &cobra.Command{
		Use:   "hierclass",
		Short: "Hierarchical category/family classifier for product descriptions",
		Long: `hierclass fits a two-level (category -> family) classifier on top of a frozen
text encoder, publishes immutable versioned bundles, and partitions new records
into classified and unclassified tables by confidence.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./hierclass.yaml)")
	rootCmd.PersistentFlags().String("store", "", "artifact store directory")
	rootCmd.PersistentFlags().String("encoder", "", "encoder kind (onnx, hashing)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")

	// Bind to viper (errors only occur for nil flags)
	_ = v.BindPFlag("store.dir", rootCmd.PersistentFlags().Lookup("store"))
	_ = v.BindPFlag("encoder.kind", rootCmd.PersistentFlags().Lookup("encoder"))
	_ = v.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(trainCmd())
	rootCmd.AddCommand(retrainCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(versionsCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(curateCmd())
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded

	// classify may print the partition on stdout; keep logs machine-readable then.
	stdoutIsData := cmd.Name() == "classify" && slices.Contains(cfg.Output.Formats, "stdout")
	return logging.Init(cfg.Logging.Format, logging.ParseLevel(cfg.Logging.Level), stdoutIsData)
}
