package trainer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DreamCats/reidtrain/internal/config"
	"github.com/DreamCats/reidtrain/internal/data"
	"github.com/DreamCats/reidtrain/internal/metrics"
)

// ErrNoResult is returned when the trainer exits without reporting a result.
var ErrNoResult = errors.New("trainer exited without a result")

const maxEventLine = 16 << 20

// Backend runs the deep-learning side of a run.
type Backend interface {
	data.Describer
	Train(ctx context.Context, req FoldRequest, onEvent func(Event)) (*metrics.FoldResult, error)
}

// ProcessBackend launches the trainer command once per call. The request
// goes to stdin as one JSON object; events come back on stdout as JSON
// lines. Stderr and non-JSON stdout lines are forwarded to the logger.
type ProcessBackend struct {
	command     []string
	workDir     string
	env         []string
	determinism Determinism
	logger      *zap.Logger
}

// NewProcessBackend builds a backend from TRAINER.COMMAND and TRAINER.WORKDIR.
// env is appended to the driver's own environment.
func NewProcessBackend(cfg *config.Config, env []string, det Determinism, logger *zap.Logger) (*ProcessBackend, error) {
	if len(cfg.Trainer.Command) == 0 {
		return nil, fmt.Errorf("trainer command is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessBackend{
		command:     append([]string(nil), cfg.Trainer.Command...),
		workDir:     cfg.Trainer.WorkDir,
		env:         append([]string(nil), env...),
		determinism: det,
		logger:      logger.Named("trainer"),
	}, nil
}

// Describe runs the trainer's loader construction and returns its dataset report.
func (p *ProcessBackend) Describe(ctx context.Context, loaders data.LoaderSpec) (*data.DatasetInfo, error) {
	req := DescribeRequest{Op: OpDescribe, Loaders: loaders, Determinism: p.determinism}
	var info *data.DatasetInfo
	err := p.call(ctx, req, func(ev Event) {
		if ev.Type == EventDescribe && ev.Dataset != nil {
			info = ev.Dataset
		}
	})
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, ErrNoResult
	}
	return info, nil
}

// Train runs one fold. Every event except the final result is passed to onEvent.
func (p *ProcessBackend) Train(ctx context.Context, req FoldRequest, onEvent func(Event)) (*metrics.FoldResult, error) {
	req.Op = OpTrain
	var result *metrics.FoldResult
	err := p.call(ctx, req, func(ev Event) {
		if ev.Type == EventResult {
			result = &metrics.FoldResult{Fold: req.Fold, CMC: ev.CMC, MAP: ev.MAP}
			return
		}
		if onEvent != nil {
			onEvent(ev)
		}
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrNoResult
	}
	return result, nil
}

func (p *ProcessBackend) call(ctx context.Context, req any, handle func(Event)) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode trainer request: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.command[0], p.command[1:]...)
	cmd.Dir = p.workDir
	cmd.Env = append(os.Environ(), p.env...)
	cmd.Stdin = bytes.NewReader(append(payload, '\n'))
	cmd.WaitDelay = 5 * time.Second
	isolate(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("trainer stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("trainer stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start trainer %s: %w", strings.Join(p.command, " "), err)
	}
	p.logger.Debug("trainer started", zap.Int("pid", cmd.Process.Pid), zap.Strings("command", p.command))

	var (
		mu          sync.Mutex
		trainerErrs []string
	)
	var g errgroup.Group
	g.Go(func() error {
		return p.readEvents(stdout, func(ev Event) {
			switch ev.Type {
			case EventError:
				mu.Lock()
				trainerErrs = append(trainerErrs, ev.Message)
				mu.Unlock()
			case EventLog:
				p.logEvent(ev)
			default:
				handle(ev)
			}
		}, func() {
			_ = killTree(cmd)
		})
	})
	g.Go(func() error {
		return p.forward(stderr)
	})

	readErr := g.Wait()
	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("trainer interrupted: %w", ctxErr)
	}
	if len(trainerErrs) > 0 {
		return fmt.Errorf("trainer failed: %s", strings.Join(trainerErrs, "; "))
	}
	if readErr != nil {
		return readErr
	}
	if waitErr != nil {
		return fmt.Errorf("trainer exited: %w", waitErr)
	}
	return nil
}

// readEvents decodes JSON lines until EOF. A malformed JSON line kills the
// process; the rest of the stream is drained so Wait can return.
func (p *ProcessBackend) readEvents(r io.Reader, handle func(Event), kill func()) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxEventLine)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if line[0] != '{' {
			p.logger.Info(string(line))
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			kill()
			_, _ = io.Copy(io.Discard, r)
			return fmt.Errorf("trainer protocol error: %w (line %q)", err, truncate(string(line), 200))
		}
		if ev.Type == "" {
			kill()
			_, _ = io.Copy(io.Discard, r)
			return fmt.Errorf("trainer protocol error: event without type (line %q)", truncate(string(line), 200))
		}
		handle(ev)
	}
	if err := sc.Err(); err != nil {
		kill()
		_, _ = io.Copy(io.Discard, r)
		return fmt.Errorf("read trainer output: %w", err)
	}
	return nil
}

func (p *ProcessBackend) forward(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxEventLine)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r\n"); line != "" {
			p.logger.Info(line, zap.String("stream", "stderr"))
		}
	}
	if err := sc.Err(); err != nil {
		_, _ = io.Copy(io.Discard, r)
	}
	return nil
}

func (p *ProcessBackend) logEvent(ev Event) {
	switch strings.ToLower(ev.Level) {
	case "debug":
		p.logger.Debug(ev.Message)
	case "warn", "warning":
		p.logger.Warn(ev.Message)
	case "error":
		p.logger.Error(ev.Message)
	default:
		p.logger.Info(ev.Message)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
