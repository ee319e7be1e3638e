package codegen

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/zhusy54/PTOTestingFramework/internal/artifact"
	"github.com/zhusy54/PTOTestingFramework/internal/ir"
	"github.com/zhusy54/PTOTestingFramework/internal/tensor"
	"github.com/zhusy54/PTOTestingFramework/internal/testcase"
)

// BackendConfig is the kernel_config.yaml structure handed to the backend
// runtime. The tensor section is derived strictly from the TensorSpec list,
// in declaration order, which is what keeps it structurally consistent
// with the golden reference.
type BackendConfig struct {
	Version       int            `yaml:"version"`
	TestName      string         `yaml:"test_name"`
	Platform      string         `yaml:"platform"`
	DeviceID      int            `yaml:"device_id"`
	Orchestration OrchEntry      `yaml:"orchestration"`
	Kernels       []KernelEntry  `yaml:"kernels"`
	Tensors       []TensorLayout `yaml:"tensors"`
}

// OrchEntry locates the orchestration source and its entry point.
type OrchEntry struct {
	Source string `yaml:"source"`
	Entry  string `yaml:"entry"`
}

// KernelEntry describes one kernel binding.
type KernelEntry struct {
	Name   string `yaml:"name"`
	Core   string `yaml:"core"`
	FuncID int    `yaml:"func_id"`
	Source string `yaml:"source"`
}

// TensorLayout describes one memory binding.
type TensorLayout struct {
	Name  string `yaml:"name"`
	Shape []int  `yaml:"shape,flow"`
	DType string `yaml:"dtype"`
	Kind  string `yaml:"kind"` // "input" or "output"
	Bytes int    `yaml:"bytes"`
}

// ConfigGenerator emits the backend-facing configuration file.
type ConfigGenerator struct{}

// NewConfigGenerator returns a config generator.
func NewConfigGenerator() *ConfigGenerator {
	return &ConfigGenerator{}
}

// Build assembles the configuration without writing it.
func (g *ConfigGenerator) Build(m *ir.Module, specs []tensor.Spec, cfg testcase.Config) BackendConfig {
	out := BackendConfig{
		Version:  1,
		TestName: m.Name,
		Platform: string(cfg.Platform),
		DeviceID: cfg.DeviceID,
		Orchestration: OrchEntry{
			Source: artifact.OrchFile,
			Entry:  EntryPointName(m.Name),
		},
	}
	for _, k := range KernelManifest(m) {
		out.Kernels = append(out.Kernels, KernelEntry{
			Name:   k.Name,
			Core:   k.Core,
			FuncID: k.FuncID,
			Source: k.Source,
		})
	}
	out.Tensors = TensorLayouts(specs)
	return out
}

// Generate writes kernel_config.yaml into the test directory.
func (g *ConfigGenerator) Generate(m *ir.Module, specs []tensor.Spec, cfg testcase.Config, dir string) error {
	data, err := yaml.Marshal(g.Build(m, specs, cfg))
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, artifact.ConfigFile), data, 0o644)
}

// LoadBackendConfig reads kernel_config.yaml back from a test directory.
// Used by the compile step and the standalone runner.
func LoadBackendConfig(dir string) (*BackendConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, artifact.ConfigFile))
	if err != nil {
		return nil, err
	}
	var cfg BackendConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// TensorLayouts maps tensor specs to their backend layout entries,
// preserving declaration order. Shared by the config and golden
// generators so the two artifacts cannot drift.
func TensorLayouts(specs []tensor.Spec) []TensorLayout {
	layouts := make([]TensorLayout, 0, len(specs))
	for _, s := range specs {
		kind := "input"
		if s.IsOutput {
			kind = "output"
		}
		layouts = append(layouts, TensorLayout{
			Name:  s.Name,
			Shape: append([]int(nil), s.Shape...),
			DType: s.DType.String(),
			Kind:  kind,
			Bytes: s.Shape.NumElements() * s.DType.Size(),
		})
	}
	return layouts
}
