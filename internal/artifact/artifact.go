// Package artifact defines the on-disk layout of a generated test artifact
// set and the metadata record describing it. The layout is a stable
// contract: the standalone runner consumes directories produced here,
// possibly after the orchestration source was edited by hand.
package artifact

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhusy54/PTOTestingFramework/internal/errors"
	"github.com/zhusy54/PTOTestingFramework/internal/testcase"
)

// Artifact set layout. Paths are relative to the test directory.
const (
	KernelsDir     = "kernels"
	OrchDir        = "orchestration"
	OrchFile       = "orchestration/orch.cpp"
	ConfigFile     = "kernel_config.yaml"
	GoldenFile     = "golden.json"
	MetadataFile   = "metadata.json"
	PassResultsDir = "pass_results"
)

var (
	sessionOnce sync.Once
	sessionDir  string
	sessionErr  error
)

// SessionDir returns the per-process timestamped output directory under
// base, creating it on first use. All saved artifact sets of one test run
// share it, mirroring a pytest session.
func SessionDir(base string) (string, error) {
	sessionOnce.Do(func() {
		stamp := time.Now().Format("20060102_150405")
		sessionDir = filepath.Join(base, "output_"+stamp)
		sessionErr = os.MkdirAll(sessionDir, 0o755)
	})
	return sessionDir, sessionErr
}

// WorkDir is a per-test artifact directory plus its cleanup policy.
type WorkDir struct {
	Path      string
	ephemeral bool
}

// NewWorkDir allocates the artifact directory for one test execution.
// With SaveArtifacts the directory is persistent under the configured (or
// session) artifacts dir; otherwise it is a uniquely named temp directory,
// so concurrent runs under an external parallel test runner can never
// corrupt each other's files.
func NewWorkDir(cfg testcase.Config, outputBase, testName string) (*WorkDir, error) {
	if cfg.SaveArtifacts {
		base := cfg.ArtifactsDir
		if base == "" {
			var err error
			base, err = SessionDir(outputBase)
			if err != nil {
				return nil, errors.Config("create session output dir: %v", err)
			}
		}
		path := filepath.Join(base, testName)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, errors.Config("create artifacts dir %s: %v", path, err)
		}
		return &WorkDir{Path: path}, nil
	}

	path, err := os.MkdirTemp("", "pto_test_"+testName+"_"+uuid.NewString()[:8]+"_")
	if err != nil {
		return nil, errors.Config("create temp work dir: %v", err)
	}
	return &WorkDir{Path: path, ephemeral: true}, nil
}

// Ephemeral reports whether Cleanup removes the directory.
func (w *WorkDir) Ephemeral() bool { return w.ephemeral }

// Cleanup removes ephemeral directories; persistent ones are caller-managed
// and never garbage collected.
func (w *WorkDir) Cleanup() {
	if w.ephemeral {
		_ = os.RemoveAll(w.Path)
	}
}
