package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zhusy54/PTOTestingFramework/internal/codegen"
	"github.com/zhusy54/PTOTestingFramework/internal/environment"
	"github.com/zhusy54/PTOTestingFramework/internal/errors"
	"github.com/zhusy54/PTOTestingFramework/internal/logging"
)

// buildDriver is the external build entry point, relative to the runtime
// installation root.
const buildDriver = "bin/pto-build"

// stderrTailLines bounds how much compiler output ends up in the error.
const stderrTailLines = 20

// DeviceCompiler invokes the external CCE toolchain to compile the kernel
// and orchestration sources into a device binary.
type DeviceCompiler struct {
	Env      environment.Env
	DeviceID int
}

func (c *DeviceCompiler) Compile(ctx context.Context, test, dir string) (*Build, error) {
	runtimeRoot, err := c.Env.RequireRuntime()
	if err != nil {
		return nil, err
	}

	cfg, err := codegen.LoadBackendConfig(dir)
	if err != nil {
		return nil, errors.Compile(test, err)
	}

	binary := filepath.Join(dir, "test_module.o")
	args := []string{
		"--config", filepath.Join(dir, "kernel_config.yaml"),
		"--output", binary,
		"--device", strconv.Itoa(c.DeviceID),
	}

	cmd := exec.CommandContext(ctx, filepath.Join(runtimeRoot, buildDriver), args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log := logging.Stage(test, "compile")
	log.Debug().Str("driver", cmd.Path).Strs("args", args).Msg("invoking build driver")

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.Timeout(test, "build driver exceeded the time budget")
		}
		return nil, errors.Compile(test, fmt.Errorf("%s: %v\n%s", buildDriver, err, stderrTail(stderr.String())))
	}

	if _, err := os.Stat(binary); err != nil {
		return nil, errors.Compile(test, fmt.Errorf("build driver exited 0 but produced no binary at %s", binary))
	}

	return &Build{Dir: dir, Config: cfg, Binary: binary}, nil
}

// stderrTail keeps the last lines of compiler output so diagnostics stay
// readable when the driver dumps a long template backtrace.
func stderrTail(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > stderrTailLines {
		skipped := len(lines) - stderrTailLines
		lines = append([]string{fmt.Sprintf("... (%d lines omitted)", skipped)}, lines[skipped:]...)
	}
	return strings.Join(lines, "\n")
}
