package runner

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/zhusy54/PTOTestingFramework/internal/artifact"
	"github.com/zhusy54/PTOTestingFramework/internal/codegen"
	"github.com/zhusy54/PTOTestingFramework/internal/errors"
	"github.com/zhusy54/PTOTestingFramework/internal/logging"
	"github.com/zhusy54/PTOTestingFramework/internal/output"
	"github.com/zhusy54/PTOTestingFramework/internal/tensor"
	"github.com/zhusy54/PTOTestingFramework/internal/testcase"
)

// preconditions are the artifacts a completed test directory must carry
// before anything external is invoked.
var preconditions = []string{
	artifact.ConfigFile,
	artifact.GoldenFile,
	artifact.OrchFile,
}

// StandaloneRunner executes a previously generated artifact directory,
// typically after the orchestration skeleton was completed by hand. It
// never regenerates anything; the directory is the source of truth.
type StandaloneRunner struct {
	Runner *TestRunner
	Out    *output.Writer
}

// NewStandalone returns a standalone runner sharing the pipeline tail of
// the given test runner.
func NewStandalone(r *TestRunner, out *output.Writer) *StandaloneRunner {
	return &StandaloneRunner{Runner: r, Out: out}
}

// RunCompletedTest compiles, executes, and validates the artifact set in
// dir. Missing artifacts fail eagerly, before any external call; an
// orchestration source that still carries the completion marker produces
// a warning but the run proceeds.
func (s *StandaloneRunner) RunCompletedTest(ctx context.Context, dir string) testcase.Result {
	start := time.Now()
	result := testcase.Result{TestName: filepath.Base(dir)}

	err := s.run(ctx, dir, &result)
	result.Err = err
	result.Passed = err == nil
	result.Duration = time.Since(start)
	return result
}

func (s *StandaloneRunner) run(ctx context.Context, dir string, result *testcase.Result) error {
	for _, rel := range preconditions {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
			return errors.Config("artifact directory %s is incomplete: %s missing", dir, rel)
		}
	}

	if meta, err := artifact.ReadMetadata(dir); err == nil {
		result.TestName = meta.TestName
	} else if !os.IsNotExist(err) {
		log := logging.Stage(result.TestName, "standalone")
		log.Warn().Err(err).Msg("metadata record unreadable")
	}

	orchSource, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(artifact.OrchFile)))
	if err != nil {
		return errors.Config("read orchestration source: %v", err)
	}
	if codegen.HasCompletionMarker(orchSource) {
		if s.Out != nil {
			s.Out.Warning("orchestration source in %s still contains the completion marker; task submission may be missing", dir)
		}
		log := logging.Stage(result.TestName, "standalone")
		log.Warn().Msg("completion marker still present")
	}

	golden, err := codegen.LoadGolden(dir)
	if err != nil {
		return errors.Config("read golden reference: %v", err)
	}
	if golden.TestName != "" {
		result.TestName = golden.TestName
	}
	inputs, expected, err := golden.Buffers()
	if err != nil {
		return err
	}

	buffers := make(map[string]*tensor.Buffer, len(inputs)+len(expected))
	specs := make([]tensor.Spec, 0, len(golden.Tensors))
	for _, gt := range golden.Tensors {
		var buf *tensor.Buffer
		if gt.Kind == "output" {
			// Outputs start zeroed; the backend fills them.
			src := expected[gt.Name]
			buf = src.Clone()
			buf.Fill(0)
		} else {
			buf = inputs[gt.Name]
		}
		buffers[gt.Name] = buf
		specs = append(specs, buf.Spec)
	}

	verdicts, err := s.Runner.executeAndValidate(ctx, result.TestName, dir, buffers, expected, specs)
	result.Metrics = verdicts
	return err
}
