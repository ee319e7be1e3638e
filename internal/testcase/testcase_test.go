package testcase

import (
	"strings"
	"testing"
	"time"

	"github.com/zhusy54/PTOTestingFramework/internal/ir"
	"github.com/zhusy54/PTOTestingFramework/internal/validate"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default is valid", func(c *Config) {}, false},
		{"hardware is valid", func(c *Config) { c.Platform = PlatformHardware; c.DeviceID = 2 }, false},
		{"unknown platform", func(c *Config) { c.Platform = "a2a3sim" }, true},
		{"negative abs tolerance", func(c *Config) { c.AbsTolerance = -1 }, true},
		{"negative rel tolerance", func(c *Config) { c.RelTolerance = -0.5 }, true},
		{"negative device", func(c *Config) { c.DeviceID = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParsePlatform(t *testing.T) {
	if p, ok := ParsePlatform("simulated"); !ok || p != PlatformSimulated {
		t.Errorf("ParsePlatform(simulated) = %v, %v", p, ok)
	}
	if p, ok := ParsePlatform("hardware"); !ok || p != PlatformHardware {
		t.Errorf("ParsePlatform(hardware) = %v, %v", p, ok)
	}
	if _, ok := ParsePlatform("a2a3"); ok {
		t.Error("ParsePlatform(a2a3) should fail")
	}
}

func TestEffectiveStrategy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = ir.StrategyDefault

	plain := &FuncCase{CaseName: "plain"}
	if got := EffectiveStrategy(plain, cfg); got != ir.StrategyDefault {
		t.Errorf("plain case strategy = %v, want default", got)
	}

	ptoas := ir.StrategyPTOAS
	overridden := &FuncCase{CaseName: "ptoas", StrategyHint: &ptoas}
	if got := EffectiveStrategy(overridden, cfg); got != ir.StrategyPTOAS {
		t.Errorf("overridden case strategy = %v, want ptoas", got)
	}
}

func TestFuncCase_MissingSuppliers(t *testing.T) {
	c := &FuncCase{CaseName: "hollow"}
	if _, err := c.Program(); err == nil {
		t.Error("Program() without supplier should fail")
	}
	if err := c.ComputeExpected(nil); err == nil {
		t.Error("ComputeExpected() without routine should fail")
	}
}

func TestResult_String(t *testing.T) {
	r := Result{
		TestName: "tile_add_128x128",
		Passed:   true,
		Duration: 1500 * time.Millisecond,
		Metrics: map[string]validate.Verdict{
			"c": {Tensor: "c", Passed: true, ShapeOK: true, DTypeOK: true},
		},
	}
	s := r.String()
	if !strings.Contains(s, "tile_add_128x128: PASSED (1.50s)") {
		t.Errorf("unexpected report header: %q", s)
	}
	if !strings.Contains(s, "c: max_abs=0.000e+00") {
		t.Errorf("missing tensor metrics: %q", s)
	}

	r.Passed = false
	r.Err = errSentinel{}
	s = r.String()
	if !strings.Contains(s, "FAILED") || !strings.Contains(s, "error: boom") {
		t.Errorf("failure report missing pieces: %q", s)
	}
}

type errSentinel struct{}

func (errSentinel) Error() string { return "boom" }
