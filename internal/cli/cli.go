// Package cli provides the command-line interface of the test pipeline.
package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zhusy54/PTOTestingFramework/internal/errors"
	"github.com/zhusy54/PTOTestingFramework/internal/ir"
	"github.com/zhusy54/PTOTestingFramework/internal/logging"
	"github.com/zhusy54/PTOTestingFramework/internal/output"
	"github.com/zhusy54/PTOTestingFramework/internal/testcase"
)

// Version is set at build time.
var Version = "dev"

var out = output.New()

// Run executes the CLI with the given arguments and returns an exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return errors.ExitSuccess
	}

	switch args[0] {
	case "-h", "--help", "help":
		printUsage()
		return errors.ExitSuccess
	case "--version", "version":
		fmt.Printf("ptotest %s\n", Version)
		return errors.ExitSuccess
	}

	opts, remaining, err := parseGlobalFlags(args)
	if err != nil {
		out.Errorln("error: %v", err)
		return errors.ExitConfigError
	}
	logging.Setup(opts.LogLevel, opts.LogFormat)
	out.SetQuiet(opts.Quiet)

	if len(remaining) == 0 {
		printUsage()
		return errors.ExitSuccess
	}
	cmd := remaining[0]
	cmdArgs := remaining[1:]

	switch cmd {
	case "run":
		return cmdRun(cmdArgs, opts)
	case "standalone":
		return cmdStandalone(cmdArgs, opts)
	case "cases":
		return cmdCases(cmdArgs)
	default:
		out.Errorln("error: unknown command %q (see 'ptotest help')", cmd)
		return errors.ExitConfigError
	}
}

// Options holds parsed global flags.
type Options struct {
	Platform    string
	DeviceID    int
	Strategy    string
	SaveKernels bool
	KernelsDir  string
	DumpPasses  bool
	CodegenOnly bool
	Timeout     time.Duration
	Quiet       bool
	LogLevel    string
	LogFormat   string

	// Reserved for a future fuzzing mode: accepted and validated so
	// existing invocations keep working, but nothing consumes them yet.
	FuzzCount int
	FuzzSeed  int64
}

// parseGlobalFlags manually parses global flags from arguments.
// Manual parsing keeps flags position-independent: they may appear before
// or after the command and its arguments.
func parseGlobalFlags(args []string) (*Options, []string, error) {
	opts := &Options{
		Platform:  string(testcase.PlatformSimulated),
		Strategy:  ir.StrategyDefault.String(),
		Timeout:   testcase.DefaultConfig().Timeout,
		LogLevel:  "info",
		LogFormat: "console",
	}
	var remaining []string

	i := 0
	next := func(flag string) (string, error) {
		if i+1 >= len(args) {
			return "", fmt.Errorf("%s requires a value", flag)
		}
		i++
		return args[i], nil
	}

	for i < len(args) {
		arg := args[i]
		name, inline, hasInline := strings.Cut(arg, "=")

		value := func(flag string) (string, error) {
			if hasInline {
				return inline, nil
			}
			return next(flag)
		}

		switch name {
		case "--platform":
			v, err := value(name)
			if err != nil {
				return nil, nil, err
			}
			opts.Platform = v
		case "--device":
			v, err := value(name)
			if err != nil {
				return nil, nil, err
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, nil, fmt.Errorf("--device requires an integer, got %q", v)
			}
			opts.DeviceID = n
		case "--strategy":
			v, err := value(name)
			if err != nil {
				return nil, nil, err
			}
			opts.Strategy = v
		case "--save-kernels":
			opts.SaveKernels = true
		case "--kernels-dir":
			v, err := value(name)
			if err != nil {
				return nil, nil, err
			}
			opts.KernelsDir = v
			opts.SaveKernels = true
		case "--dump-passes":
			opts.DumpPasses = true
		case "--codegen-only":
			opts.CodegenOnly = true
		case "--timeout":
			v, err := value(name)
			if err != nil {
				return nil, nil, err
			}
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, nil, fmt.Errorf("--timeout requires a duration, got %q", v)
			}
			opts.Timeout = d
		case "--fuzz-count":
			v, err := value(name)
			if err != nil {
				return nil, nil, err
			}
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return nil, nil, fmt.Errorf("--fuzz-count requires a non-negative integer, got %q", v)
			}
			opts.FuzzCount = n
		case "--fuzz-seed":
			v, err := value(name)
			if err != nil {
				return nil, nil, err
			}
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("--fuzz-seed requires an integer, got %q", v)
			}
			opts.FuzzSeed = n
		case "--log-level":
			v, err := value(name)
			if err != nil {
				return nil, nil, err
			}
			opts.LogLevel = v
		case "--log-format":
			v, err := value(name)
			if err != nil {
				return nil, nil, err
			}
			opts.LogFormat = v
		case "-q", "--quiet":
			opts.Quiet = true
		default:
			if strings.HasPrefix(arg, "-") {
				return nil, nil, fmt.Errorf("unknown flag %q", arg)
			}
			remaining = append(remaining, arg)
		}
		i++
	}

	if err := validateOptions(opts); err != nil {
		return nil, nil, err
	}
	return opts, remaining, nil
}

func validateOptions(opts *Options) error {
	if _, ok := testcase.ParsePlatform(opts.Platform); !ok {
		return fmt.Errorf("invalid --platform value %q\n  valid values: simulated, hardware", opts.Platform)
	}
	if _, ok := ir.ParseStrategy(opts.Strategy); !ok {
		return fmt.Errorf("invalid --strategy value %q\n  valid values: default, ptoas", opts.Strategy)
	}
	if opts.DeviceID < 0 {
		return fmt.Errorf("--device must be non-negative, got %d", opts.DeviceID)
	}
	return nil
}

// config maps parsed flags onto the pipeline configuration.
func (o *Options) config() testcase.Config {
	platform, _ := testcase.ParsePlatform(o.Platform)
	strategy, _ := ir.ParseStrategy(o.Strategy)

	cfg := testcase.DefaultConfig()
	cfg.Platform = platform
	cfg.DeviceID = o.DeviceID
	cfg.Strategy = strategy
	cfg.SaveArtifacts = o.SaveKernels
	cfg.ArtifactsDir = o.KernelsDir
	cfg.DumpPasses = o.DumpPasses
	cfg.CodegenOnly = o.CodegenOnly
	cfg.Timeout = o.Timeout
	return cfg
}

func printUsage() {
	out.Println("ptotest %s - cross-component test pipeline for tensor programs", Version)
	out.Println("")
	out.Println("Usage:")
	out.Println("  ptotest <command> [flags]")
	out.Println("")
	out.Println("Commands:")
	out.Println("  run [case ...]       run built-in test cases (all when none given)")
	out.Println("  standalone <dir>...  compile and run completed artifact directories")
	out.Println("  cases                list built-in test cases")
	out.Println("  version              print the version")
	out.Println("  help                 print this help")
	out.Println("")
	out.Println("Flags:")
	out.Println("  --platform {simulated|hardware}   execution platform (default simulated)")
	out.Println("  --device N                        device index for hardware runs")
	out.Println("  --strategy {default|ptoas}        optimization strategy")
	out.Println("  --save-kernels                    keep generated artifacts")
	out.Println("  --kernels-dir PATH                artifact directory (implies --save-kernels)")
	out.Println("  --dump-passes                     write per-pass IR snapshots")
	out.Println("  --codegen-only                    stop after artifact generation")
	out.Println("  --timeout D                       per-test wall-clock budget (default 5m)")
	out.Println("  --fuzz-count N, --fuzz-seed N     reserved for the fuzzing mode")
	out.Println("  --log-level L, --log-format F     logging (debug..error; console|json)")
	out.Println("  -q, --quiet                       suppress per-test progress lines")
}
