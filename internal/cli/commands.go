package cli

import (
	"context"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/zhusy54/PTOTestingFramework/internal/cases"
	"github.com/zhusy54/PTOTestingFramework/internal/environment"
	"github.com/zhusy54/PTOTestingFramework/internal/errors"
	"github.com/zhusy54/PTOTestingFramework/internal/runner"
	"github.com/zhusy54/PTOTestingFramework/internal/testcase"
)

// cmdRun executes built-in cases: the named ones, or all of them.
func cmdRun(args []string, opts *Options) int {
	selected := cases.BuiltIn()
	if len(args) > 0 {
		selected = selected[:0]
		for _, name := range args {
			tc, ok := cases.ByName(name)
			if !ok {
				out.Errorln("error: unknown test case %q (see 'ptotest cases')", name)
				return errors.ExitConfigError
			}
			selected = append(selected, tc)
		}
	}

	cfg := opts.config()
	if err := cfg.Validate(); err != nil {
		out.Errorln("error: %v", err)
		return errors.ExitConfigError
	}

	r := runner.New(cfg, environment.Discover())
	suite := runner.NewSuite(r, out)
	suite.Add(selected...)

	// In quiet batch mode the per-test lines are suppressed, so a
	// progress bar is the only liveness signal.
	var bar *progressbar.ProgressBar
	if opts.Quiet && suite.Len() > 1 {
		bar = progressbar.NewOptions(suite.Len(),
			progressbar.OptionSetDescription("running"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish(),
		)
		suite.OnResult = func(testcase.Result) { _ = bar.Add(1) }
		defer func() { _ = bar.Finish() }()
	}

	summary := suite.RunAll(context.Background())
	if summary.Ok() {
		return errors.ExitSuccess
	}
	return worstExitCode(summary.Results)
}

// cmdStandalone compiles and executes completed artifact directories.
func cmdStandalone(args []string, opts *Options) int {
	if len(args) == 0 {
		out.Errorln("error: standalone requires at least one artifact directory")
		return errors.ExitConfigError
	}

	cfg := opts.config()
	if err := cfg.Validate(); err != nil {
		out.Errorln("error: %v", err)
		return errors.ExitConfigError
	}

	s := runner.NewStandalone(runner.New(cfg, environment.Discover()), out)
	var results []testcase.Result
	passed, failed := 0, 0
	for _, dir := range args {
		out.TestStart(dir)
		r := s.RunCompletedTest(context.Background(), dir)
		results = append(results, r)
		if r.Passed {
			passed++
			out.TestPassed(r)
		} else {
			failed++
			out.TestFailed(r)
		}
	}
	out.SuiteSummary(len(args), passed, failed, results)

	if failed == 0 {
		return errors.ExitSuccess
	}
	return worstExitCode(results)
}

// cmdCases lists the built-in test corpus.
func cmdCases(args []string) int {
	out.Println("built-in test cases:")
	out.List(cases.Names())
	return errors.ExitSuccess
}

// worstExitCode maps the failed results to the most specific exit code:
// environment problems beat config problems beat plain test failures.
func worstExitCode(results []testcase.Result) int {
	code := errors.ExitTestFailure
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		if c := errors.GetExitCode(r.Err); c > code {
			code = c
		}
	}
	return code
}
