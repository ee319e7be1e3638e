// Package backend executes a compiled build against concrete tensor
// buffers. The runtime is a black box behind the bind/register/launch
// contract: artifacts are bound, kernels are registered, and a launch
// produces the output buffers the validator compares against the golden.
package backend

import (
	"context"

	"github.com/zhusy54/PTOTestingFramework/internal/environment"
	"github.com/zhusy54/PTOTestingFramework/internal/tensor"
	"github.com/zhusy54/PTOTestingFramework/internal/testcase"
	"github.com/zhusy54/PTOTestingFramework/internal/toolchain"
)

// Runtime is the execution contract every platform implements.
// Bind rejections surface as bind errors, faults during a launch as
// runtime errors, and an exceeded context deadline as a timeout error.
type Runtime interface {
	// Bind attaches a compiled build and verifies its tensor bindings.
	Bind(build *toolchain.Build) error
	// RegisterKernels makes the build's kernels launchable.
	RegisterKernels() error
	// Launch runs the program once. tensors must hold a buffer for every
	// tensor in the bound config; output buffers are returned by name.
	Launch(ctx context.Context, tensors map[string]*tensor.Buffer) (map[string]*tensor.Buffer, error)
}

// ForPlatform selects the runtime matching the configured platform.
func ForPlatform(cfg testcase.Config, env environment.Env) Runtime {
	if cfg.Platform == testcase.PlatformHardware {
		return &Device{Env: env, DeviceID: cfg.DeviceID}
	}
	return &Simulator{}
}
