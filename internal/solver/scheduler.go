package solver

import (
	"fmt"
	"math"
	"sort"

	"github.com/DreamCats/reidtrain/internal/config"
)

// Scheduler maps an epoch index to a learning rate.
type Scheduler interface {
	Name() string
	LR(epoch int) float64
}

// ScheduleSpec is the schedule sent to the trainer: one lr per epoch.
type ScheduleSpec struct {
	Name   string    `json:"name"`
	Epochs int       `json:"epochs"`
	LR     []float64 `json:"lr"`
}

// Table evaluates s for epochs 0..epochs-1.
func Table(s Scheduler, epochs int) ScheduleSpec {
	lrs := make([]float64, epochs)
	for i := range lrs {
		lrs[i] = s.LR(i)
	}
	return ScheduleSpec{Name: s.Name(), Epochs: epochs, LR: lrs}
}

// BuildScheduler returns the scheduler named by SOLVER.SCHEDULER.
func BuildScheduler(cfg *config.Config) (Scheduler, error) {
	s := cfg.Solver
	switch s.Scheduler {
	case "cosine", "":
		return NewCosine(s.BaseLR, s.MaxEpochs, s.WarmupEpochs), nil
	case "warmup_multistep":
		return NewWarmupMultiStep(s.BaseLR, s.Steps, s.Gamma, s.WarmupFactor, s.WarmupEpochs, s.WarmupMethod)
	default:
		return nil, fmt.Errorf("unsupported scheduler: %s", s.Scheduler)
	}
}

// Cosine is a single-cycle cosine decay with a linear warmup.
// The floor is 0.002·base and warmup starts at 0.01·base.
type Cosine struct {
	Base       float64
	Min        float64
	WarmupInit float64
	WarmupT    int
	TInitial   int
}

// NewCosine builds the cosine schedule over epochs with warmup epochs of warmup.
func NewCosine(base float64, epochs, warmup int) *Cosine {
	return &Cosine{
		Base:       base,
		Min:        0.002 * base,
		WarmupInit: 0.01 * base,
		WarmupT:    warmup,
		TInitial:   epochs,
	}
}

func (c *Cosine) Name() string { return "cosine" }

func (c *Cosine) LR(t int) float64 {
	if t < c.WarmupT {
		return c.WarmupInit + float64(t)*(c.Base-c.WarmupInit)/float64(c.WarmupT)
	}
	if c.TInitial <= 0 || t >= c.TInitial {
		return c.Min
	}
	return c.Min + 0.5*(c.Base-c.Min)*(1+math.Cos(math.Pi*float64(t)/float64(c.TInitial)))
}

// WarmupMultiStep decays by Gamma at each milestone after a warmup phase.
type WarmupMultiStep struct {
	Base         float64
	Milestones   []int
	Gamma        float64
	WarmupFactor float64
	WarmupIters  int
	WarmupMethod string
}

// NewWarmupMultiStep validates milestones and warmup method.
func NewWarmupMultiStep(base float64, milestones []int, gamma, warmupFactor float64, warmupIters int, method string) (*WarmupMultiStep, error) {
	if !sort.IntsAreSorted(milestones) {
		return nil, fmt.Errorf("milestones should be increasing, got %v", milestones)
	}
	for i := 1; i < len(milestones); i++ {
		if milestones[i] == milestones[i-1] {
			return nil, fmt.Errorf("milestones should be increasing, got %v", milestones)
		}
	}
	if method != "linear" && method != "constant" {
		return nil, fmt.Errorf("only constant or linear warmup accepted, got %s", method)
	}
	return &WarmupMultiStep{
		Base:         base,
		Milestones:   append([]int(nil), milestones...),
		Gamma:        gamma,
		WarmupFactor: warmupFactor,
		WarmupIters:  warmupIters,
		WarmupMethod: method,
	}, nil
}

func (w *WarmupMultiStep) Name() string { return "warmup_multistep" }

func (w *WarmupMultiStep) LR(t int) float64 {
	factor := 1.0
	if t < w.WarmupIters {
		if w.WarmupMethod == "constant" {
			factor = w.WarmupFactor
		} else {
			alpha := float64(t) / float64(w.WarmupIters)
			factor = w.WarmupFactor*(1-alpha) + alpha
		}
	}
	// number of milestones <= t
	passed := sort.Search(len(w.Milestones), func(i int) bool { return w.Milestones[i] > t })
	return w.Base * factor * math.Pow(w.Gamma, float64(passed))
}
