// Package runner sequences the test pipeline: tensor resolution through
// code generation, compilation, execution, and validation. Stages run in
// order and the first failure aborts the test; there are no retries.
package runner

import (
	"context"
	"time"

	"github.com/zhusy54/PTOTestingFramework/internal/artifact"
	"github.com/zhusy54/PTOTestingFramework/internal/backend"
	"github.com/zhusy54/PTOTestingFramework/internal/codegen"
	"github.com/zhusy54/PTOTestingFramework/internal/environment"
	"github.com/zhusy54/PTOTestingFramework/internal/errors"
	"github.com/zhusy54/PTOTestingFramework/internal/logging"
	"github.com/zhusy54/PTOTestingFramework/internal/tensor"
	"github.com/zhusy54/PTOTestingFramework/internal/testcase"
	"github.com/zhusy54/PTOTestingFramework/internal/toolchain"
	"github.com/zhusy54/PTOTestingFramework/internal/validate"
)

// TestRunner executes single test cases under a fixed configuration.
type TestRunner struct {
	Config testcase.Config
	Env    environment.Env

	kernel *codegen.KernelGenerator
	orch   *codegen.OrchGenerator
	config *codegen.ConfigGenerator
	golden *codegen.GoldenGenerator
}

// New returns a runner for the given configuration and environment.
func New(cfg testcase.Config, env environment.Env) *TestRunner {
	return &TestRunner{
		Config: cfg,
		Env:    env,
		kernel: codegen.NewKernelGenerator(),
		orch:   codegen.NewOrchGenerator(),
		config: codegen.NewConfigGenerator(),
		golden: codegen.NewGoldenGenerator(),
	}
}

// Run executes one test case end to end and always returns a Result; the
// aborting error, if any, travels in Result.Err.
func (r *TestRunner) Run(ctx context.Context, tc testcase.TestCase) testcase.Result {
	start := time.Now()
	result := testcase.Result{TestName: tc.Name()}

	err := r.run(ctx, tc, &result)
	result.Err = err
	result.Passed = err == nil && (result.Metrics == nil || allPassed(result.Metrics))
	result.Duration = time.Since(start)
	return result
}

func (r *TestRunner) run(ctx context.Context, tc testcase.TestCase, result *testcase.Result) error {
	test := tc.Name()

	if err := r.Config.Validate(); err != nil {
		return errors.Config("%v", err)
	}

	specs := tc.Tensors()
	if err := tensor.ResolveSpecs(test, specs); err != nil {
		return err
	}

	buffers, err := tensor.MaterializeAll(test, specs)
	if err != nil {
		return err
	}

	m, err := tc.Program()
	if err != nil {
		return errors.Codegen(test, "program", err)
	}
	if err := m.Validate(); err != nil {
		return errors.Codegen(test, "program", err)
	}

	work, err := artifact.NewWorkDir(r.Config, r.Env.OutputBase(), test)
	if err != nil {
		return err
	}
	defer work.Cleanup()

	log := logging.Stage(test, "codegen")
	log.Debug().Str("dir", work.Path).Msg("generating artifact set")

	strategy := testcase.EffectiveStrategy(tc, r.Config)
	if _, _, err := r.kernel.Generate(m, specs, r.Config, strategy, work.Path); err != nil {
		return asCodegen(test, "kernel", err)
	}
	if err := r.orch.Generate(m, specs, r.Config, work.Path); err != nil {
		return asCodegen(test, "orchestration", err)
	}
	if err := r.config.Generate(m, specs, r.Config, work.Path); err != nil {
		return asCodegen(test, "config", err)
	}
	expected, err := r.golden.GenerateFrom(tc, specs, buffers, work.Path)
	if err != nil {
		return asCodegen(test, "golden", err)
	}

	meta, err := artifact.NewMetadata(work.Path, test, r.Config)
	if err != nil {
		return asCodegen(test, "metadata", err)
	}
	if err := meta.Write(work.Path); err != nil {
		return asCodegen(test, "metadata", err)
	}

	if r.Config.CodegenOnly {
		log := logging.Stage(test, "codegen")
		log.Info().Msg("codegen-only run, skipping execution")
		return nil
	}

	verdicts, err := r.executeAndValidate(ctx, test, work.Path, buffers, expected, specs)
	result.Metrics = verdicts
	return err
}

// executeAndValidate is the compile/execute/validate tail, shared with the
// standalone runner. The wall-clock budget covers compilation and launch.
func (r *TestRunner) executeAndValidate(ctx context.Context, test, dir string, buffers, expected map[string]*tensor.Buffer, specs []tensor.Spec) (map[string]validate.Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Config.Timeout)
	defer cancel()

	build, err := toolchain.ForPlatform(r.Config, r.Env).Compile(ctx, test, dir)
	if err != nil {
		return nil, err
	}

	rt := backend.ForPlatform(r.Config, r.Env)
	if err := rt.Bind(build); err != nil {
		return nil, err
	}
	if err := rt.RegisterKernels(); err != nil {
		return nil, err
	}

	outputs, err := rt.Launch(ctx, buffers)
	if err != nil {
		return nil, err
	}

	opts := validate.Options{
		AbsTolerance: r.Config.AbsTolerance,
		RelTolerance: r.Config.RelTolerance,
	}
	verdicts, ok := validate.CompareAll(outputs, expected, specs, opts)
	if !ok {
		return verdicts, errors.Validation(test, firstFailure(verdicts, specs), "output deviates beyond tolerance (atol=%g, rtol=%g)",
			r.Config.AbsTolerance, r.Config.RelTolerance)
	}
	return verdicts, nil
}

// asCodegen tags a generator failure with the generator name unless the
// error already carries pipeline context.
func asCodegen(test, generator string, err error) error {
	if pe, ok := err.(*errors.PipelineError); ok {
		if pe.Test == "" {
			pe.Test = test
		}
		return pe
	}
	return errors.Codegen(test, generator, err)
}

func allPassed(verdicts map[string]validate.Verdict) bool {
	for _, v := range verdicts {
		if !v.Passed {
			return false
		}
	}
	return true
}

// firstFailure returns the first failing output tensor in declaration order.
func firstFailure(verdicts map[string]validate.Verdict, specs []tensor.Spec) string {
	for _, s := range specs {
		if v, ok := verdicts[s.Name]; ok && !v.Passed {
			return s.Name
		}
	}
	return ""
}
