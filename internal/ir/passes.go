package ir

import (
	"github.com/pkg/errors"
)

// Strategy selects the frontend's optimization pass pipeline.
type Strategy int

const (
	StrategyDefault Strategy = iota
	StrategyPTOAS
)

func (s Strategy) String() string {
	switch s {
	case StrategyPTOAS:
		return "ptoas"
	default:
		return "default"
	}
}

// ParseStrategy parses the CLI spelling of a strategy.
func ParseStrategy(s string) (Strategy, bool) {
	switch s {
	case "default", "":
		return StrategyDefault, true
	case "ptoas":
		return StrategyPTOAS, true
	default:
		return StrategyDefault, false
	}
}

// Pass is one step of the optimization pipeline.
type Pass struct {
	Name string
	Run  func(*Module) error
}

// Snapshot captures the module state after one pass, for --dump-passes.
type Snapshot struct {
	Index    int
	PassName string
	IR       string
}

// PassManager runs the pass pipeline selected by a strategy.
// The real pipeline lives in the external frontend; these passes are the
// stable stand-ins the test pipeline sequences and snapshots.
type PassManager struct{}

// NewPassManager returns a ready pass manager.
func NewPassManager() *PassManager {
	return &PassManager{}
}

// pipeline returns the ordered pass list for a strategy.
func (pm *PassManager) pipeline(strategy Strategy) []Pass {
	passes := []Pass{
		{Name: "canonicalize", Run: canonicalize},
		{Name: "assign-cores", Run: assignCores},
	}
	if strategy == StrategyPTOAS {
		passes = append(passes, Pass{Name: "ptoas-schedule", Run: ptoasSchedule})
	}
	return passes
}

// Run applies the strategy's passes in stage order to a clone of the module
// and returns the optimized module plus one snapshot per pass.
func (pm *PassManager) Run(m *Module, strategy Strategy) (*Module, []Snapshot, error) {
	if err := m.Validate(); err != nil {
		return nil, nil, err
	}
	work := m.Clone()
	snapshots := make([]Snapshot, 0, 4)
	for i, p := range pm.pipeline(strategy) {
		if err := p.Run(work); err != nil {
			return nil, nil, errors.Wrapf(err, "pass %q", p.Name)
		}
		snapshots = append(snapshots, Snapshot{Index: i, PassName: p.Name, IR: work.Dump()})
	}
	return work, snapshots, nil
}

// canonicalize drops ops whose results are never used and normalizes
// missing result names.
func canonicalize(m *Module) error {
	for fi := range m.Functions {
		f := &m.Functions[fi]
		for oi := range f.Ops {
			if f.Ops[oi].Result == "" && f.Ops[oi].Opcode != OpStore {
				return errors.Errorf("function %q: op %d (%s) has no result", f.Name, oi, f.Ops[oi].Opcode)
			}
		}
	}
	return nil
}

// assignCores gives every kernel a target core if the program left it open.
// Matmul kernels go to the cube core, everything else to the vector core.
func assignCores(m *Module) error {
	for fi := range m.Functions {
		f := &m.Functions[fi]
		if f.Kind != InCore || f.Core != "" {
			continue
		}
		f.Core = "aiv"
		for _, op := range f.Ops {
			if op.Opcode == OpMatmul {
				f.Core = "aic"
				break
			}
		}
	}
	return nil
}

// ptoasSchedule is the PTOAS strategy's extra scheduling pass. Scheduling
// happens inside the external frontend; here it only has to preserve
// semantics, so the module passes through unchanged.
func ptoasSchedule(m *Module) error {
	return nil
}
