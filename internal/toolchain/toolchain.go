// Package toolchain compiles a generated artifact set into something the
// backend can execute. The simulated platform just loads and checks the
// artifacts; the hardware platform shells out to the external CCE build
// driver.
package toolchain

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"

	"github.com/zhusy54/PTOTestingFramework/internal/codegen"
	"github.com/zhusy54/PTOTestingFramework/internal/environment"
	"github.com/zhusy54/PTOTestingFramework/internal/errors"
	"github.com/zhusy54/PTOTestingFramework/internal/ir"
	"github.com/zhusy54/PTOTestingFramework/internal/logging"
	"github.com/zhusy54/PTOTestingFramework/internal/testcase"
)

// Build is the compiled form of one artifact set, ready for the backend.
// Module is populated on the simulated platform only; hardware builds
// produce a binary next to the sources instead.
type Build struct {
	Dir    string
	Config *codegen.BackendConfig
	Module *ir.Module
	Binary string
}

// Compiler turns an artifact directory into a Build.
type Compiler interface {
	Compile(ctx context.Context, test, dir string) (*Build, error)
}

// ForPlatform selects the compiler matching the configured platform.
func ForPlatform(cfg testcase.Config, env environment.Env) Compiler {
	if cfg.Platform == testcase.PlatformHardware {
		return &DeviceCompiler{Env: env, DeviceID: cfg.DeviceID}
	}
	return &SimCompiler{}
}

// SimCompiler loads the backend config and the lowered module file and
// verifies the artifact set is complete. There is nothing to actually
// compile; the simulator interprets the module directly.
type SimCompiler struct{}

func (c *SimCompiler) Compile(ctx context.Context, test, dir string) (*Build, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Timeout(test, "cancelled before compile: %v", err)
	}

	cfg, err := codegen.LoadBackendConfig(dir)
	if err != nil {
		return nil, errors.Compile(test, pkgerrors.Wrap(err, "load backend config"))
	}

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(codegen.ModuleFile)))
	if err != nil {
		return nil, errors.Compile(test, pkgerrors.Wrap(err, "load module"))
	}
	var m ir.Module
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Compile(test, pkgerrors.Wrap(err, "parse module"))
	}
	if err := m.Validate(); err != nil {
		return nil, errors.Compile(test, pkgerrors.Wrap(err, "validate module"))
	}

	for _, k := range cfg.Kernels {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(k.Source))); err != nil {
			return nil, errors.Compile(test, pkgerrors.Errorf("kernel %s: source %s missing", k.Name, k.Source))
		}
	}
	if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(cfg.Orchestration.Source))); err != nil {
		return nil, errors.Compile(test, pkgerrors.Errorf("orchestration source %s missing", cfg.Orchestration.Source))
	}

	log := logging.Stage(test, "compile")
	log.Debug().
		Int("kernels", len(cfg.Kernels)).
		Msg("artifact set loaded")

	return &Build{Dir: dir, Config: cfg, Module: &m}, nil
}
