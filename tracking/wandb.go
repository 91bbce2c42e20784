package tracking

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// WandbRun logs metrics and images into a local run directory in the
// offline style of the W&B client: an append-only JSONL history plus a
// media folder with copied images.
type WandbRun struct {
	runID   string
	dir     string
	history *os.File
	encoder *json.Encoder
	step    int
}

type wandbRunMeta struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Mode      string    `json:"mode"`
}

type wandbHistoryRecord struct {
	Step      int                `json:"step"`
	Timestamp time.Time          `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Image     string             `json:"image,omitempty"`
	ImageName string             `json:"image_name,omitempty"`
}

// NewWandbRun creates the run directory layout and opens the history
// file for appending.
func NewWandbRun(baseDir string) (*WandbRun, error) {
	runID := uuid.NewString()
	dir := filepath.Join(baseDir, "run-"+runID)
	if err := os.MkdirAll(filepath.Join(dir, "media"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	meta := wandbRunMeta{
		RunID:     runID,
		CreatedAt: time.Now(),
		Mode:      "offline",
	}
	metaRaw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "run.json"), metaRaw, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write run metadata: %w", err)
	}

	history, err := os.OpenFile(filepath.Join(dir, "history.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}

	return &WandbRun{
		runID:   runID,
		dir:     dir,
		history: history,
		encoder: json.NewEncoder(history),
	}, nil
}

// Name identifies the backend.
func (r *WandbRun) Name() string { return "wandb" }

// RunID returns the identifier of this run.
func (r *WandbRun) RunID() string { return r.runID }

// Dir returns the run directory.
func (r *WandbRun) Dir() string { return r.dir }

// LogMetrics appends a metrics record to the run history.
func (r *WandbRun) LogMetrics(metrics map[string]float64) error {
	r.step++
	return r.append(wandbHistoryRecord{
		Step:      r.step,
		Timestamp: time.Now(),
		Metrics:   metrics,
	})
}

// LogImage copies the image into the media folder and records it in the
// run history under the given name.
func (r *WandbRun) LogImage(name, path string) error {
	dst := filepath.Join(r.dir, "media", name+filepath.Ext(path))
	if err := copyFile(path, dst); err != nil {
		return fmt.Errorf("failed to copy image into run directory: %w", err)
	}
	r.step++
	return r.append(wandbHistoryRecord{
		Step:      r.step,
		Timestamp: time.Now(),
		Image:     dst,
		ImageName: name,
	})
}

// Close flushes and closes the run history.
func (r *WandbRun) Close() error {
	return r.history.Close()
}

func (r *WandbRun) append(rec wandbHistoryRecord) error {
	if err := r.encoder.Encode(rec); err != nil {
		return fmt.Errorf("failed to append history record: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
