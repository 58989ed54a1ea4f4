package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wasmkit/naivevm"
	"github.com/wasmkit/naivevm/internal/version"
	"github.com/wasmkit/naivevm/internal/wattest"
)

func main() {
	doMain(os.Stdout, os.Stderr, os.Exit)
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdOut io.Writer, stdErr io.Writer, exit func(code int)) {
	flag.CommandLine.SetOutput(stdErr)

	var help bool
	flag.BoolVar(&help, "h", false, "print usage")

	flag.Parse()

	if help || flag.NArg() == 0 {
		printUsage(stdErr)
		exit(0)
	}

	subCmd := flag.Arg(0)
	switch subCmd {
	case "run":
		doRun(flag.Args()[1:], stdOut, stdErr, exit)
	case "test":
		doTest(flag.Args()[1:], stdOut, stdErr, exit)
	case "version":
		fmt.Fprintln(stdOut, version.GetNaivevmVersion())
		exit(0)
	default:
		fmt.Fprintln(stdErr, "invalid command")
		printUsage(stdErr)
		exit(1)
	}
}

// commonFlags are the flags shared by the run and test commands.
type commonFlags struct {
	configPath string
	logLevel   string
	trace      bool
}

func (c *commonFlags) register(flags *flag.FlagSet) {
	flags.StringVar(&c.configPath, "config", "", "path to a TOML runtime config")
	flags.StringVar(&c.logLevel, "log-level", "", "log level to stderr, overriding the config: debug, info, warn or error")
	flags.BoolVar(&c.trace, "trace", false, "log each executed instruction at debug level")
}

// runtimeConfig loads the config file, if any, and applies the flags over it. The logger writes to stdErr.
func (c *commonFlags) runtimeConfig(stdErr io.Writer) (*naivevm.RuntimeConfig, error) {
	config := naivevm.NewRuntimeConfig()
	if c.configPath != "" {
		var err error
		if config, err = naivevm.LoadRuntimeConfig(c.configPath); err != nil {
			return nil, err
		}
	}
	if c.logLevel != "" {
		level, err := zapcore.ParseLevel(c.logLevel)
		if err != nil {
			return nil, err
		}
		config = config.WithLogLevel(level)
	}
	if c.trace {
		config = config.WithTrace(true)
	}

	level := config.LogLevel()
	if config.Trace() && level > zapcore.DebugLevel {
		level = zapcore.DebugLevel
	}
	return config.WithLogger(newLogger(stdErr, level)), nil
}

func newLogger(w io.Writer, level zapcore.Level) *zap.Logger {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(w), level)
	return zap.New(core)
}

func doRun(args []string, stdOut io.Writer, stdErr io.Writer, exit func(code int)) {
	flags := flag.NewFlagSet("run", flag.ExitOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVar(&help, "h", false, "print usage")

	var common commonFlags
	common.register(flags)

	var funcIdx int
	flags.IntVar(&funcIdx, "func", 0, "index of the function to invoke")

	var exportName string
	flags.StringVar(&exportName, "export", "", "name of the exported function to invoke, instead of -func")

	var memAddr uint
	flags.UintVar(&memAddr, "mem", 0, "address of the i32 to print after the invocation")

	_ = flags.Parse(args)

	if help {
		printRunUsage(stdErr, flags)
		exit(0)
	}

	if flags.NArg() < 1 {
		fmt.Fprintln(stdErr, "missing path to wasm file")
		printRunUsage(stdErr, flags)
		exit(1)
	}

	config, err := common.runtimeConfig(stdErr)
	if err != nil {
		fmt.Fprintf(stdErr, "invalid config: %v\n", err)
		exit(1)
	}

	wasmPath := flags.Arg(0)
	wasm, err := os.ReadFile(wasmPath)
	if err != nil {
		fmt.Fprintf(stdErr, "error reading wasm binary: %v\n", err)
		exit(1)
	}

	rt := naivevm.NewRuntimeWithConfig(config)
	compiled, err := rt.CompileModule(wasm)
	if err != nil {
		fmt.Fprintf(stdErr, "error compiling wasm binary: %v\n", err)
		exit(1)
	}

	idx := uint32(funcIdx)
	if exportName != "" {
		var ok bool
		if idx, ok = compiled.ExportedFunctionIndex(exportName); !ok {
			fmt.Fprintf(stdErr, "%q is not an exported function\n", exportName)
			exit(1)
		}
	} else if funcIdx < 0 || idx >= compiled.FunctionCount() {
		fmt.Fprintf(stdErr, "invalid function index %d: module has %d functions\n", funcIdx, compiled.FunctionCount())
		exit(1)
	}

	paramTypes, resultTypes, err := compiled.FunctionType(idx)
	if err != nil {
		fmt.Fprintf(stdErr, "error compiling wasm binary: %v\n", err)
		exit(1)
	}
	wasmArgs := flags.Args()[1:]
	if len(wasmArgs) != len(paramTypes) {
		fmt.Fprintf(stdErr, "function[%d] takes %d params, but %d were passed\n", idx, len(paramTypes), len(wasmArgs))
		exit(1)
	}
	params := make([]uint64, len(wasmArgs))
	for i, arg := range wasmArgs {
		if params[i], err = naivevm.ParseValue(paramTypes[i], arg); err != nil {
			fmt.Fprintf(stdErr, "invalid param %d: %v\n", i, err)
			exit(1)
		}
	}

	instance, err := rt.InstantiateModule(compiled)
	if err != nil {
		fmt.Fprintf(stdErr, "error instantiating wasm binary: %v\n", err)
		exit(1)
	}

	results, err := instance.Invoke(idx, params...)
	if err != nil {
		fmt.Fprintf(stdErr, "error invoking function[%d]: %v\n", idx, err)
		exit(1)
	}
	for i, r := range results {
		fmt.Fprintf(stdOut, "%s: %s\n", naivevm.ValueTypeName(resultTypes[i]), naivevm.FormatValue(resultTypes[i], r))
	}

	if instance.MemorySize() > 0 {
		v, err := instance.ReadMemoryI32(uint32(memAddr))
		if err != nil {
			fmt.Fprintf(stdErr, "error reading memory: %v\n", err)
			exit(1)
		}
		fmt.Fprintf(stdOut, "mem[%d]: %d\n", memAddr, v)
	}
	exit(0)
}

func doTest(args []string, stdOut io.Writer, stdErr io.Writer, exit func(code int)) {
	flags := flag.NewFlagSet("test", flag.ExitOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVar(&help, "h", false, "print usage")

	var common commonFlags
	common.register(flags)

	_ = flags.Parse(args)

	if help {
		printTestUsage(stdErr, flags)
		exit(0)
	}

	if flags.NArg() < 2 {
		fmt.Fprintln(stdErr, "missing path to wasm or wat file")
		printTestUsage(stdErr, flags)
		exit(1)
	}

	config, err := common.runtimeConfig(stdErr)
	if err != nil {
		fmt.Fprintf(stdErr, "invalid config: %v\n", err)
		exit(1)
	}

	wasmPath, watPath := flags.Arg(0), flags.Arg(1)
	wasm, err := os.ReadFile(wasmPath)
	if err != nil {
		fmt.Fprintf(stdErr, "error reading wasm binary: %v\n", err)
		exit(1)
	}

	wat, err := os.Open(watPath)
	if err != nil {
		fmt.Fprintf(stdErr, "error reading wat file: %v\n", err)
		exit(1)
	}
	cases, err := wattest.Parse(wat)
	_ = wat.Close()
	if err != nil {
		fmt.Fprintf(stdErr, "error parsing %s: %v\n", watPath, err)
		exit(1)
	}

	instance, err := naivevm.NewRuntimeWithConfig(config).InstantiateModuleFromSource(wasm)
	if err != nil {
		fmt.Fprintf(stdErr, "error instantiating wasm binary: %v\n", err)
		exit(1)
	}

	reporter := &wattest.Reporter{Out: stdOut, Styled: isTerminal(stdOut)}
	reporter.Parsed(cases, filepath.Base(watPath))
	results := wattest.Run(instance, cases)
	for _, r := range results {
		reporter.Result(r)
	}
	reporter.Summary(results)

	if wattest.Passed(results) != len(results) {
		exit(1)
	}
	exit(0)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printUsage(stdErr io.Writer) {
	fmt.Fprintln(stdErr, "naivevm CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  naivevm <command>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Commands:")
	fmt.Fprintln(stdErr, "  run\t\tInvokes a function of a WebAssembly binary")
	fmt.Fprintln(stdErr, "  test\t\tRuns the test cases annotated in the text format of a WebAssembly binary")
	fmt.Fprintln(stdErr, "  version\tDisplays the version of naivevm CLI")
}

func printRunUsage(stdErr io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(stdErr, "naivevm CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  naivevm run <options> <path to wasm file> [params...]")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}

func printTestUsage(stdErr io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(stdErr, "naivevm CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  naivevm test <options> <path to wasm file> <path to wat file>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}
