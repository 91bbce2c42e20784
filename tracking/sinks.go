package tracking

// Logger is any experiment logger attached to a trainer. Only loggers
// that also implement Backend receive evaluation results.
type Logger interface {
	Name() string
}

// Backend is the uniform logging capability the evaluation pushes
// results to: an image under a name, or a mapping of scalar metrics.
type Backend interface {
	Logger
	LogImage(name, path string) error
	LogMetrics(metrics map[string]float64) error
}

// Sinks holds explicit optional references to the two supported
// tracking backends, resolved once at the start of an evaluation.
// Logging through empty Sinks is a silent no-op.
type Sinks struct {
	Comet *CometClient
	Wandb *WandbRun
}

// ResolveSinks scans the logger list for the two supported backends and
// keeps a reference to each one present. The last match of each type
// wins.
func ResolveSinks(loggers []Logger) Sinks {
	var s Sinks
	for _, l := range loggers {
		switch b := l.(type) {
		case *CometClient:
			s.Comet = b
		case *WandbRun:
			s.Wandb = b
		}
	}
	return s
}

// Active reports whether at least one backend is present.
func (s Sinks) Active() bool {
	return s.Comet != nil || s.Wandb != nil
}

// backends returns the present backends.
func (s Sinks) backends() []Backend {
	var bs []Backend
	if s.Comet != nil {
		bs = append(bs, s.Comet)
	}
	if s.Wandb != nil {
		bs = append(bs, s.Wandb)
	}
	return bs
}

// LogImage logs the image at path under the given name to every active
// backend.
func (s Sinks) LogImage(name, path string) error {
	for _, b := range s.backends() {
		if err := b.LogImage(name, path); err != nil {
			return err
		}
	}
	return nil
}

// LogMetrics logs the metrics mapping to every active backend.
func (s Sinks) LogMetrics(metrics map[string]float64) error {
	for _, b := range s.backends() {
		if err := b.LogMetrics(metrics); err != nil {
			return err
		}
	}
	return nil
}
