package training

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
	"gorgonia.org/tensor"

	"github.com/deepjets/jetflow/checkpoints"
	"github.com/deepjets/jetflow/generation"
	"github.com/deepjets/jetflow/jet"
	"github.com/deepjets/jetflow/metrics"
	"github.com/deepjets/jetflow/plotting"
	"github.com/deepjets/jetflow/substructure"
	"github.com/deepjets/jetflow/tracking"
)

// fixedSeed is the deterministic generation seed used when
// FinalEvalConfig.FixSeed is set, so repeated evaluations are
// comparable.
const fixedSeed = 9999

// multiplierDisabled is the sentinel for "no dataset multiplier".
const multiplierDisabled = -1

// Output file names written next to the checkpoint directory.
const (
	generatedDataPrefix    = "final_generated_data"
	metricsFilePrefix      = "final_eval_metrics"
	plotPrefix             = "final_plot"
	substructurePrefix     = "substructure"
	substructureRefPrefix  = "substructure_jetnet"
	substructure3Prefix    = "substructure_3plots"
	substructureFullPrefix = "substructure_full"
)

// FinalEvalConfig configures the final evaluation of a generative model
// after training.
type FinalEvalConfig struct {
	// UseEMA prefers EMA-averaged weights for evaluation.
	UseEMA bool `json:"use_ema" yaml:"use_ema"`
	// Dataset is the split to evaluate on ("test" or "val").
	Dataset jet.Split `json:"dataset" yaml:"dataset"`
	// NrCheckpointCallbacks indexes into the trainer's checkpoint
	// selectors when no explicit path is given.
	NrCheckpointCallbacks int `json:"nr_checkpoint_callbacks" yaml:"nr_checkpoint_callbacks"`
	// UseLastCheckpoint selects the most recent instead of the
	// best-scoring checkpoint.
	UseLastCheckpoint bool `json:"use_last_checkpoint" yaml:"use_last_checkpoint"`
	// CkptPath bypasses all other checkpoint selection logic when set.
	CkptPath string `json:"ckpt_path" yaml:"ckpt_path"`
	// NumJetSamples is the number of jets to generate. Negative values
	// are a multiplier on the dataset size, e.g. -2 generates
	// 2*len(dataset) samples.
	NumJetSamples int `json:"num_jet_samples" yaml:"num_jet_samples"`
	// FixSeed makes generation deterministic.
	FixSeed bool `json:"fix_seed" yaml:"fix_seed"`
	// EvaluateSubstructure gates the substructure branch. Takes long.
	EvaluateSubstructure bool `json:"evaluate_substructure" yaml:"evaluate_substructure"`
	// Suffix disambiguates output files and metric keys across repeated
	// evaluations.
	Suffix string `json:"suffix" yaml:"suffix"`
	// CondPath points at an external conditioning file whose mask and
	// conditioning supersede the dataset's own.
	CondPath string `json:"cond_path" yaml:"cond_path"`

	// Pass-through option bundles.
	WDist      metrics.Config    `json:"w_dist_config" yaml:"w_dist_config"`
	Generation generation.Config `json:"generation_config" yaml:"generation_config"`
	Plot       plotting.Config   `json:"plot_config" yaml:"plot_config"`
}

// DefaultFinalEvalConfig returns the default evaluation configuration.
func DefaultFinalEvalConfig() FinalEvalConfig {
	return FinalEvalConfig{
		UseEMA:               true,
		Dataset:              jet.SplitTest,
		UseLastCheckpoint:    true,
		NumJetSamples:        -1,
		FixSeed:              true,
		EvaluateSubstructure: true,
		WDist:                metrics.DefaultConfig(),
		Generation:           generation.DefaultConfig(),
		Plot:                 plotting.DefaultConfig(),
	}
}

// FinalEvalCallback generates synthetic jets from the trained model at
// the end of the test phase, compares them against the reference split
// with Wasserstein distances and diagnostic plots, and pushes the
// results to the active tracking backends.
type FinalEvalCallback struct {
	cfg FinalEvalConfig

	// Resolved at test start.
	numJetSamples      int
	datasetsMultiplier int
	sinks              tracking.Sinks
}

// NewFinalEvalCallback creates the callback from its configuration.
func NewFinalEvalCallback(cfg FinalEvalConfig) *FinalEvalCallback {
	return &FinalEvalCallback{
		cfg:                cfg,
		datasetsMultiplier: multiplierDisabled,
	}
}

// NumJetSamples returns the resolved sample count.
func (c *FinalEvalCallback) NumJetSamples() int { return c.numJetSamples }

// DatasetsMultiplier returns the resolved dataset multiplier, or the
// disabled sentinel.
func (c *FinalEvalCallback) DatasetsMultiplier() int { return c.datasetsMultiplier }

// Sinks returns the tracking sinks resolved at test start.
func (c *FinalEvalCallback) Sinks() tracking.Sinks { return c.sinks }

// OnTestStart resolves the effective sample count and discovers the
// active tracking backends.
func (c *FinalEvalCallback) OnTestStart(ctx context.Context, t *Trainer) error {
	split, err := t.DataModule.SplitTensors(c.cfg.Dataset)
	if err != nil {
		return err
	}

	if c.cfg.NumJetSamples < 0 {
		c.datasetsMultiplier = -c.cfg.NumJetSamples
		c.numJetSamples = split.Len() * c.datasetsMultiplier
	} else {
		c.numJetSamples = c.cfg.NumJetSamples
		c.datasetsMultiplier = multiplierDisabled
	}
	if c.cfg.CondPath != "" {
		c.datasetsMultiplier = multiplierDisabled
	}

	c.sinks = tracking.ResolveSinks(t.Loggers)

	log.Info().
		Str("dataset", string(c.cfg.Dataset)).
		Int("num_jet_samples", c.numJetSamples).
		Bool("comet", c.sinks.Comet != nil).
		Bool("wandb", c.sinks.Wandb != nil).
		Msg("final evaluation scheduled")
	return nil
}

// OnTestEnd runs the full evaluation sequence: checkpoint resolution,
// model reload, generation, metrics, plots, substructure and logging.
func (c *FinalEvalCallback) OnTestEnd(ctx context.Context, t *Trainer) error {
	log.Info().Str("dataset", string(c.cfg.Dataset)).Msg("evaluating model")

	ckpt, err := c.resolveCheckpoint(t)
	if err != nil {
		return err
	}
	log.Info().Str("checkpoint", ckpt).Msg("loading checkpoint")

	model, err := t.ModelLoader.Load(ckpt)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}

	var rng *rand.Rand
	if c.cfg.FixSeed {
		rng = rand.New(rand.NewSource(fixedSeed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	dm := t.DataModule
	split, err := dm.SplitTensors(c.cfg.Dataset)
	if err != nil {
		return err
	}

	mask, cond, err := c.resolveConditioning(dm, split)
	if err != nil {
		return err
	}

	backgroundData, err := jet.SliceJets(split.Data, c.numJetSamples)
	if err != nil {
		return err
	}
	if mask, err = jet.SliceJets(mask, c.numJetSamples); err != nil {
		return err
	}
	if cond, err = jet.SliceJets(cond, c.numJetSamples); err != nil {
		return err
	}

	// The background slice bounds how many samples are plotted.
	numPlotSamples := backgroundData.Shape()[0]

	if c.datasetsMultiplier > 1 {
		if mask, err = jet.RepeatJets(mask, c.datasetsMultiplier); err != nil {
			return err
		}
		if cond, err = jet.RepeatJets(cond, c.datasetsMultiplier); err != nil {
			return err
		}
	}

	numSamples := mask.Shape()[0]
	data, elapsed, err := generation.Generate(ctx, model, numSamples, cond, mask,
		dm.VariableJetSizes, dm.Normalize, dm.Means, dm.Stds, rng, c.cfg.Generation)
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}
	log.Info().Int("num_samples", numSamples).Dur("elapsed", elapsed).Msg("generated jets")

	outDir := filepath.Dir(filepath.Dir(ckpt))
	genPath := filepath.Join(outDir, generatedDataPrefix+c.cfg.Suffix+".h5")
	if err := jet.SaveJets(genPath, data); err != nil {
		return err
	}

	results, err := metrics.AllDistances(rng, backgroundData, data, c.cfg.WDist)
	if err != nil {
		return err
	}

	dataPlotting, err := jet.SliceJets(data, numPlotSamples)
	if err != nil {
		return err
	}
	genPrep, err := plotting.PrepareData(dataPlotting, c.cfg.Plot)
	if err != nil {
		return fmt.Errorf("failed to prepare generated data for plotting: %w", err)
	}
	refPrep, err := plotting.PrepareData(backgroundData, c.cfg.Plot)
	if err != nil {
		return fmt.Errorf("failed to prepare background data for plotting: %w", err)
	}

	plotName := plotPrefix + c.cfg.Suffix
	if err := plotting.PlotComparison(genPrep, refPrep, outDir, plotName, c.cfg.Plot); err != nil {
		return err
	}

	if c.cfg.EvaluateSubstructure {
		if err := c.evaluateSubstructure(rng, data, backgroundData, outDir, results); err != nil {
			return err
		}
	}

	if err := writeMetricsFile(results, filepath.Join(outDir, metricsFilePrefix+c.cfg.Suffix+".yml")); err != nil {
		return err
	}

	// Re-key for better distinction in the tracking backends.
	final := make(map[string]float64, len(results))
	for key, value := range results {
		final[key+"_final"+c.cfg.Suffix] = value
	}

	if err := c.sinks.LogImage("A_"+plotName, filepath.Join(outDir, plotName+plotting.Ext)); err != nil {
		return fmt.Errorf("failed to log primary plot: %w", err)
	}
	if err := c.sinks.LogMetrics(final); err != nil {
		return fmt.Errorf("failed to log metrics: %w", err)
	}
	return nil
}

// resolveCheckpoint applies the selection precedence: explicit path,
// then the configured selector.
func (c *FinalEvalCallback) resolveCheckpoint(t *Trainer) (string, error) {
	if c.cfg.CkptPath != "" {
		return c.cfg.CkptPath, nil
	}
	idx := c.cfg.NrCheckpointCallbacks
	if idx < 0 || idx >= len(t.CheckpointSelectors) {
		return "", fmt.Errorf("checkpoint selector index %d out of range (%d selectors)",
			idx, len(t.CheckpointSelectors))
	}
	return checkpoints.Resolve(t.CheckpointSelectors[idx], c.cfg.UseEMA, c.cfg.UseLastCheckpoint)
}

// resolveConditioning returns the mask and conditioning tensors for
// generation: from the external conditioning file when configured,
// otherwise from the dataset split.
func (c *FinalEvalCallback) resolveConditioning(dm *jet.DataModule, split *jet.SplitTensors) (*tensor.Dense, *tensor.Dense, error) {
	if c.cfg.CondPath == "" {
		return split.Mask, split.Cond, nil
	}

	external, err := jet.ReadConditioning(c.cfg.CondPath)
	if err != nil {
		return nil, nil, err
	}
	mask, err := jet.TriangularMask(external.NumParticles, dm.NumParticles)
	if err != nil {
		return nil, nil, err
	}
	cond, err := jet.BuildConditioningTensor(external, dm.NumCondFeatures != 0, dm.CondMeans, dm.CondStds)
	if err != nil {
		return nil, nil, err
	}
	return mask, cond, nil
}

// evaluateSubstructure dumps the observables of both populations,
// reloads them, merges their pairwise distances into results and renders
// the two substructure figures.
func (c *FinalEvalCallback) evaluateSubstructure(rng *rand.Rand, data, background *tensor.Dense,
	outDir string, results map[string]float64) error {

	genPath := filepath.Join(outDir, substructurePrefix+c.cfg.Suffix)
	if err := substructure.Dump(data, genPath); err != nil {
		return err
	}
	refPath := filepath.Join(outDir, substructureRefPrefix+c.cfg.Suffix)
	if err := substructure.Dump(background, refPath); err != nil {
		return err
	}

	genObs, keys, err := substructure.Load(genPath)
	if err != nil {
		return err
	}
	refObs, _, err := substructure.Load(refPath)
	if err != nil {
		return err
	}

	for _, key := range []string{substructure.KeyTau21, substructure.KeyTau32, substructure.KeyD2} {
		mean, std := metrics.DistanceBatched(rng, refObs[key], genObs[key], c.cfg.WDist)
		results["w_dist_"+key+"_mean"] = mean
		results["w_dist_"+key+"_std"] = std
	}

	name3 := substructure3Prefix + c.cfg.Suffix
	if err := plotting.PlotSubstructure(
		genObs[substructure.KeyTau21], genObs[substructure.KeyTau32], genObs[substructure.KeyD2],
		refObs[substructure.KeyTau21], refObs[substructure.KeyTau32], refObs[substructure.KeyD2],
		outDir, name3, c.cfg.Plot.Bins); err != nil {
		return err
	}
	nameFull := substructureFullPrefix + c.cfg.Suffix
	if err := plotting.PlotFullSubstructure(genObs, refObs, keys, outDir, nameFull, c.cfg.Plot.Bins); err != nil {
		return err
	}

	if err := c.sinks.LogImage("A_final_substructure"+c.cfg.Suffix, filepath.Join(outDir, name3+plotting.Ext)); err != nil {
		return fmt.Errorf("failed to log substructure plot: %w", err)
	}
	if err := c.sinks.LogImage("A_final_substructure_full"+c.cfg.Suffix, filepath.Join(outDir, nameFull+plotting.Ext)); err != nil {
		return fmt.Errorf("failed to log full substructure plot: %w", err)
	}
	return nil
}

// writeMetricsFile serializes the metrics mapping to a flat YAML file,
// coercing every value to a finite scalar.
func writeMetricsFile(results map[string]float64, path string) error {
	sanitized := make(map[string]float64, len(results))
	for key, value := range results {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			value = 0
		}
		sanitized[key] = value
	}
	raw, err := yaml.Marshal(sanitized)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	log.Info().Str("path", path).Msg("writing final evaluation metrics")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}
