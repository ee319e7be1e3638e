// Package environment resolves the installation paths of the external
// collaborators (frontend compiler, backend runtime) into one explicit
// context object, built once at process start and passed down the pipeline.
// Nothing in the pipeline reads environment variables after that.
package environment

import (
	"os"
	"path/filepath"

	"github.com/zhusy54/PTOTestingFramework/internal/errors"
)

// Environment variable names recognized at construction time.
const (
	FrameworkRootVar = "PTO_FRAMEWORK_ROOT"
	FrontendRootVar  = "PTO_FRONTEND_ROOT"
	RuntimeRootVar   = "PTO_RUNTIME_ROOT"
)

// thirdPartyDir is the fallback location for collaborator checkouts when
// the environment variables are unset.
const thirdPartyDir = "3rdparty"

// Env holds every externally configured path the pipeline needs.
// FrontendRoot and RuntimeRoot are empty when the collaborator is not
// installed; Require* turns that into an environment error.
type Env struct {
	FrameworkRoot string
	FrontendRoot  string
	RuntimeRoot   string
}

// Discover builds the environment context from process environment
// variables, falling back to <framework>/3rdparty/<name> checkouts.
func Discover() Env {
	framework := os.Getenv(FrameworkRootVar)
	if framework == "" {
		if cwd, err := os.Getwd(); err == nil {
			framework = cwd
		} else {
			framework = "."
		}
	}

	return Env{
		FrameworkRoot: framework,
		FrontendRoot:  resolveCollaborator(FrontendRootVar, framework, "frontend"),
		RuntimeRoot:   resolveCollaborator(RuntimeRootVar, framework, "runtime"),
	}
}

func resolveCollaborator(envVar, framework, name string) string {
	if root := os.Getenv(envVar); root != "" {
		return root
	}
	fallback := filepath.Join(framework, thirdPartyDir, name)
	if _, err := os.Stat(fallback); err == nil {
		return fallback
	}
	return ""
}

// RequireFrontend returns the frontend root or an environment error with
// remediation steps.
func (e Env) RequireFrontend() (string, error) {
	if e.FrontendRoot == "" {
		return "", errors.Environment("frontend compiler not found: set %s or install it under %s/",
			FrontendRootVar, thirdPartyDir)
	}
	return e.FrontendRoot, nil
}

// RequireRuntime returns the backend runtime root or an environment error.
func (e Env) RequireRuntime() (string, error) {
	if e.RuntimeRoot == "" {
		return "", errors.Environment("backend runtime not found: set %s or install it under %s/",
			RuntimeRootVar, thirdPartyDir)
	}
	return e.RuntimeRoot, nil
}

// OutputBase returns the base directory for session-scoped test outputs.
func (e Env) OutputBase() string {
	return filepath.Join(e.FrameworkRoot, "build", "outputs")
}
