package trainer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ScalarSink receives scalar events for the run history.
type ScalarSink interface {
	RecordScalar(runID string, fold int, tag string, step int, value float64) error
}

// Scalar is one line of scalars.jsonl.
type Scalar struct {
	Tag      string    `json:"tag"`
	Step     int       `json:"step"`
	Value    float64   `json:"value"`
	WallTime time.Time `json:"wall_time"`
}

// Saver writes a fold's training curves under <outputDir>/<name>/scalars.jsonl
// and mirrors them into the run history.
type Saver struct {
	mu    sync.Mutex
	dir   string
	file  *os.File
	enc   *json.Encoder
	sink  ScalarSink
	runID string
	fold  int
}

// NewSaver creates the saver directory and opens the scalar log for appending.
// sink may be nil.
func NewSaver(outputDir, name string, sink ScalarSink, runID string, fold int) (*Saver, error) {
	dir := filepath.Join(outputDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create saver dir: %w", err)
	}
	file, err := os.OpenFile(filepath.Join(dir, "scalars.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open scalar log: %w", err)
	}
	return &Saver{
		dir:   dir,
		file:  file,
		enc:   json.NewEncoder(file),
		sink:  sink,
		runID: runID,
		fold:  fold,
	}, nil
}

// Dir returns the saver directory handed to the trainer.
func (s *Saver) Dir() string {
	return s.dir
}

// AddScalar appends one value of a curve.
func (s *Saver) AddScalar(tag string, step int, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(Scalar{Tag: tag, Step: step, Value: value, WallTime: time.Now().UTC()}); err != nil {
		return fmt.Errorf("write scalar %s: %w", tag, err)
	}
	if s.sink != nil {
		if err := s.sink.RecordScalar(s.runID, s.fold, tag, step, value); err != nil {
			return fmt.Errorf("record scalar %s: %w", tag, err)
		}
	}
	return nil
}

// Observe turns trainer events into curves. Training curves are indexed by
// global iteration, evaluation curves by epoch.
func (s *Saver) Observe(ev Event) error {
	switch ev.Type {
	case EventProgress:
		step := ev.Epoch*ev.Iters + ev.Iter
		for _, sc := range []struct {
			tag   string
			value float64
		}{
			{"train/loss", ev.Loss},
			{"train/acc", ev.Acc},
			{"train/lr", ev.LR},
		} {
			if err := s.AddScalar(sc.tag, step, sc.value); err != nil {
				return err
			}
		}
	case EventEval:
		if err := s.AddScalar("eval/mAP", ev.Epoch, ev.MAP); err != nil {
			return err
		}
		if len(ev.CMC) > 0 {
			if err := s.AddScalar("eval/rank1", ev.Epoch, ev.CMC[0]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close flushes and closes the scalar log.
func (s *Saver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
