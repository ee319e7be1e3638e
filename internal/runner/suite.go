package runner

import (
	"context"

	"github.com/zhusy54/PTOTestingFramework/internal/output"
	"github.com/zhusy54/PTOTestingFramework/internal/testcase"
)

// TestSuite runs an ordered list of test cases sequentially. A failing
// test never stops the suite; each case gets a fresh pipeline run.
type TestSuite struct {
	Runner *TestRunner
	Out    *output.Writer

	// OnResult, when set, observes every result as it lands. Used by the
	// CLI to advance its progress bar.
	OnResult func(testcase.Result)

	cases []testcase.TestCase
}

// NewSuite returns an empty suite backed by the given runner.
func NewSuite(r *TestRunner, out *output.Writer) *TestSuite {
	return &TestSuite{Runner: r, Out: out}
}

// Add appends test cases in execution order.
func (s *TestSuite) Add(cases ...testcase.TestCase) {
	s.cases = append(s.cases, cases...)
}

// Len returns the number of registered cases.
func (s *TestSuite) Len() int { return len(s.cases) }

// Summary aggregates a whole suite run.
type Summary struct {
	Total   int
	Passed  int
	Failed  int
	Results []testcase.Result
}

// Ok reports whether every test passed.
func (s Summary) Ok() bool { return s.Failed == 0 }

// RunAll executes every registered case in order and prints per-test
// progress plus the final report.
func (s *TestSuite) RunAll(ctx context.Context) Summary {
	summary := Summary{Total: len(s.cases)}
	for _, tc := range s.cases {
		if s.Out != nil {
			s.Out.TestStart(tc.Name())
		}
		r := s.Runner.Run(ctx, tc)
		summary.Results = append(summary.Results, r)
		if s.OnResult != nil {
			s.OnResult(r)
		}
		if r.Passed {
			summary.Passed++
			if s.Out != nil {
				s.Out.TestPassed(r)
			}
		} else {
			summary.Failed++
			if s.Out != nil {
				s.Out.TestFailed(r)
			}
		}
	}
	if s.Out != nil {
		s.Out.SuiteSummary(summary.Total, summary.Passed, summary.Failed, summary.Results)
	}
	return summary
}
