// Package testcase defines the test-declaration interface consumed by the
// runner, the pipeline configuration, and the per-test result.
package testcase

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zhusy54/PTOTestingFramework/internal/ir"
	"github.com/zhusy54/PTOTestingFramework/internal/tensor"
	"github.com/zhusy54/PTOTestingFramework/internal/validate"
)

// TestCase is the capability set a test must expose: a unique name, its
// tensor declarations, a program supplier, and an expectation routine that
// fills output tensors from the realized input values.
type TestCase interface {
	Name() string
	Tensors() []tensor.Spec
	Program() (*ir.Module, error)
	ComputeExpected(tensors map[string]*tensor.Buffer) error
}

// StrategyOverrider is the optional capability for a test case to select
// its own optimization strategy instead of the configured one.
type StrategyOverrider interface {
	Strategy() ir.Strategy
}

// FuncCase adapts a struct of function values into a TestCase, so tests can
// declare cases inline without defining a new type.
type FuncCase struct {
	CaseName     string
	TensorSpecs  []tensor.Spec
	ProgramFn    func() (*ir.Module, error)
	ExpectedFn   func(tensors map[string]*tensor.Buffer) error
	StrategyHint *ir.Strategy
}

func (c *FuncCase) Name() string           { return c.CaseName }
func (c *FuncCase) Tensors() []tensor.Spec { return c.TensorSpecs }

func (c *FuncCase) Program() (*ir.Module, error) {
	if c.ProgramFn == nil {
		return nil, fmt.Errorf("test case %q has no program supplier", c.CaseName)
	}
	return c.ProgramFn()
}

func (c *FuncCase) ComputeExpected(tensors map[string]*tensor.Buffer) error {
	if c.ExpectedFn == nil {
		return fmt.Errorf("test case %q has no expectation routine", c.CaseName)
	}
	return c.ExpectedFn(tensors)
}

// EffectiveStrategy returns the test case's strategy override if it
// declares one, otherwise the configured strategy.
func EffectiveStrategy(tc TestCase, cfg Config) ir.Strategy {
	if fc, ok := tc.(*FuncCase); ok {
		if fc.StrategyHint != nil {
			return *fc.StrategyHint
		}
		return cfg.Strategy
	}
	if so, ok := tc.(StrategyOverrider); ok {
		return so.Strategy()
	}
	return cfg.Strategy
}

// Platform selects the execution target.
type Platform string

const (
	PlatformSimulated Platform = "simulated"
	PlatformHardware  Platform = "hardware"
)

// ParsePlatform parses the CLI spelling of a platform.
func ParsePlatform(s string) (Platform, bool) {
	switch Platform(s) {
	case PlatformSimulated, PlatformHardware:
		return Platform(s), true
	default:
		return "", false
	}
}

// Config is the immutable pipeline configuration for a test run.
type Config struct {
	Platform      Platform
	DeviceID      int
	Strategy      ir.Strategy
	AbsTolerance  float64
	RelTolerance  float64
	SaveArtifacts bool
	ArtifactsDir  string
	DumpPasses    bool
	CodegenOnly   bool
	Timeout       time.Duration
}

// DefaultConfig returns the configuration used when the caller supplies none.
func DefaultConfig() Config {
	return Config{
		Platform:     PlatformSimulated,
		Strategy:     ir.StrategyDefault,
		AbsTolerance: 1e-4,
		RelTolerance: 1e-4,
		Timeout:      5 * time.Minute,
	}
}

// Validate rejects configurations the pipeline cannot honor.
func (c Config) Validate() error {
	if c.Platform != PlatformSimulated && c.Platform != PlatformHardware {
		return fmt.Errorf("unknown platform %q", c.Platform)
	}
	if c.AbsTolerance < 0 || c.RelTolerance < 0 {
		return fmt.Errorf("tolerances must be non-negative (abs=%v, rel=%v)", c.AbsTolerance, c.RelTolerance)
	}
	if c.DeviceID < 0 {
		return fmt.Errorf("device id must be non-negative, got %d", c.DeviceID)
	}
	return nil
}

// Result is the outcome of one test execution.
type Result struct {
	TestName string
	Passed   bool
	Err      error
	Metrics  map[string]validate.Verdict
	Duration time.Duration
}

// String renders a one-test report: verdict, timing, error, and per-tensor
// deviation metrics.
func (r Result) String() string {
	var b strings.Builder
	status := "PASSED"
	if !r.Passed {
		status = "FAILED"
	}
	fmt.Fprintf(&b, "%s: %s (%.2fs)", r.TestName, status, r.Duration.Seconds())
	if r.Err != nil {
		fmt.Fprintf(&b, "\n  error: %v", r.Err)
	}
	names := make([]string, 0, len(r.Metrics))
	for name := range r.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := r.Metrics[name]
		fmt.Fprintf(&b, "\n  %s: max_abs=%.3e max_rel=%.3e shape_ok=%t dtype_ok=%t",
			name, v.MaxAbsDiff, v.MaxRelDiff, v.ShapeOK, v.DTypeOK)
	}
	return b.String()
}
