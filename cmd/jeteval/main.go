package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/deepjets/jetflow/checkpoints"
	"github.com/deepjets/jetflow/generation"
	"github.com/deepjets/jetflow/jet"
	"github.com/deepjets/jetflow/tracking"
	"github.com/deepjets/jetflow/training"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("jeteval failed")
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "jeteval",
		Short: "Final evaluation of jet generative models",
		Long: `jeteval reloads a trained generative model from a checkpoint,
samples synthetic jets, compares them against the reference dataset with
Wasserstein distances and diagnostic plots, and logs the results to the
configured tracking backends.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "path to a YAML config file")

	root.AddCommand(newEvaluateCmd())
	root.AddCommand(newRunsCmd())
	return root
}

func newEvaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the final evaluation once",
		RunE:  runEvaluate,
	}

	flags := cmd.Flags()
	flags.String("data", "", "path to the HDF5 dataset file")
	flags.String("ckpt", "", "explicit checkpoint path (overrides selection flags)")
	flags.String("dataset", "test", "dataset split to evaluate on (test|val)")
	flags.Int("num-samples", -1, "number of jets to generate; negative = dataset multiplier")
	flags.Bool("substructure", true, "evaluate substructure observables")
	flags.Bool("fix-seed", true, "use a fixed generation seed")
	flags.String("suffix", "", "suffix for output files and metric keys")
	flags.String("cond", "", "optional external conditioning file")
	flags.Bool("variable-jet-sizes", true, "dataset contains variable-size jets")
	flags.Bool("normalized", true, "dataset features are standardized")
	flags.String("wandb-dir", "", "enable the wandb backend with this base directory")
	flags.String("comet-url", "", "enable the comet backend at this base URL")
	flags.String("store", "", "optional SQLite run registry path")

	return cmd
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	v := viper.New()
	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	dataPath := v.GetString("data")
	if dataPath == "" {
		return fmt.Errorf("no dataset file given (--data)")
	}
	ckptPath := v.GetString("ckpt")
	if ckptPath == "" {
		return fmt.Errorf("no checkpoint given (--ckpt)")
	}

	dm, err := jet.LoadDataModule(dataPath, v.GetBool("variable-jet-sizes"), v.GetBool("normalized"))
	if err != nil {
		return err
	}
	log.Info().
		Int("test_jets", dm.Test.Len()).
		Int("val_jets", dm.Val.Len()).
		Int("num_particles", dm.NumParticles).
		Msg("dataset loaded")

	var loggers []tracking.Logger
	if dir := v.GetString("wandb-dir"); dir != "" {
		run, err := tracking.NewWandbRun(dir)
		if err != nil {
			return err
		}
		defer run.Close()
		loggers = append(loggers, run)
	}
	if url := v.GetString("comet-url"); url != "" {
		cometCfg := tracking.DefaultCometConfig()
		cometCfg.BaseURL = url
		loggers = append(loggers, tracking.NewCometClient(cometCfg))
	}

	cfg := training.DefaultFinalEvalConfig()
	cfg.CkptPath = ckptPath
	cfg.Dataset = jet.Split(v.GetString("dataset"))
	cfg.NumJetSamples = v.GetInt("num-samples")
	cfg.EvaluateSubstructure = v.GetBool("substructure")
	cfg.FixSeed = v.GetBool("fix-seed")
	cfg.Suffix = v.GetString("suffix")
	cfg.CondPath = v.GetString("cond")

	callback := training.NewFinalEvalCallback(cfg)
	trainer := &training.Trainer{
		DataModule: dm,
		CheckpointSelectors: []checkpoints.Selector{
			checkpoints.ExplicitCheckpoint{Path: ckptPath},
		},
		Loggers: loggers,
		ModelLoader: &generation.NoiseLoader{
			Means:        dm.Means,
			Stds:         dm.Stds,
			NumParticles: dm.NumParticles,
		},
		Callbacks: []training.Callback{callback},
	}

	if err := trainer.RunTest(context.Background()); err != nil {
		return err
	}

	if storePath := v.GetString("store"); storePath != "" {
		if err := recordRun(storePath, ckptPath, cfg.Suffix); err != nil {
			return err
		}
	}
	return nil
}

// recordRun registers the evaluation in the local run registry together
// with the metrics summary written next to the checkpoint directory.
func recordRun(storePath, ckptPath, suffix string) error {
	store, err := tracking.NewRunStore(storePath)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.CreateRun(ckptPath, suffix)
	if err != nil {
		return err
	}

	metricsPath := filepath.Join(filepath.Dir(filepath.Dir(ckptPath)), "final_eval_metrics"+suffix+".yml")
	raw, err := os.ReadFile(metricsPath)
	if err != nil {
		return fmt.Errorf("failed to read metrics summary: %w", err)
	}
	var results map[string]float64
	if err := yaml.Unmarshal(raw, &results); err != nil {
		return fmt.Errorf("failed to parse metrics summary: %w", err)
	}
	if err := store.RecordMetrics(run.ID, results); err != nil {
		return err
	}
	log.Info().Str("run_id", run.ID).Int("metrics", len(results)).Msg("run recorded")
	return nil
}

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded evaluation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			storePath, _ := cmd.Flags().GetString("store")
			if storePath == "" {
				return fmt.Errorf("no run registry given (--store)")
			}
			store, err := tracking.NewRunStore(storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			if runID, _ := cmd.Flags().GetString("run"); runID != "" {
				results, err := store.Metrics(runID)
				if err != nil {
					return err
				}
				keys := make([]string, 0, len(results))
				for key := range results {
					keys = append(keys, key)
				}
				sort.Strings(keys)
				for _, key := range keys {
					fmt.Printf("%s: %g\n", key, results[key])
				}
				return nil
			}

			runs, err := store.ListRuns()
			if err != nil {
				return err
			}
			for _, run := range runs {
				fmt.Printf("%s  %s  %s%s\n", run.CreatedAt.Format("2006-01-02 15:04:05"), run.ID, run.Checkpoint, run.Suffix)
			}
			return nil
		},
	}
	cmd.Flags().String("store", "", "SQLite run registry path")
	cmd.Flags().String("run", "", "print the metrics of one run instead of the run list")
	return cmd
}
