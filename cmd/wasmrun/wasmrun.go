package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/utnet-org/wasmer2"
)

func main() {
	doMain(os.Stdout, os.Stderr, os.Exit)
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdOut, stdErr io.Writer, exit func(code int)) {
	flag.CommandLine.SetOutput(stdErr)

	var help bool
	flag.BoolVar(&help, "h", false, "print usage")

	flag.Parse()

	if help || flag.NArg() == 0 {
		printUsage(stdErr)
		exit(0)
		return
	}

	switch flag.Arg(0) {
	case "run":
		doRun(flag.Args()[1:], stdOut, stdErr, exit)
	default:
		fmt.Fprintln(stdErr, "invalid command")
		printUsage(stdErr)
		exit(1)
		return
	}
}

func doRun(args []string, stdOut, stdErr io.Writer, exit func(code int)) {
	flags := flag.NewFlagSet("run", flag.ExitOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVar(&help, "h", false, "print usage")
	backend := flags.String("backend", string(wasmer2.Baseline),
		"compiler backend: baseline, optimizing-a or optimizing-b")
	verbose := flags.Bool("v", false, "log compile and instantiate events")

	_ = flags.Parse(args)

	if help {
		printRunUsage(stdErr, flags)
		exit(0)
		return
	}
	if flags.NArg() < 2 {
		fmt.Fprintln(stdErr, "missing path to wasm file or function name")
		printRunUsage(stdErr, flags)
		exit(1)
		return
	}

	wasmPath, funcName := flags.Arg(0), flags.Arg(1)
	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		fmt.Fprintf(stdErr, "error reading %s: %v\n", wasmPath, err)
		exit(1)
		return
	}

	cfg := wasmer2.NewConfig().WithBackend(wasmer2.BackendKind(*backend))
	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintln(stdErr, err)
			exit(1)
			return
		}
		defer logger.Sync() //nolint:errcheck
		cfg = cfg.WithLogger(logger)
	}

	engine, err := wasmer2.NewEngine(cfg)
	if err != nil {
		fmt.Fprintln(stdErr, err)
		exit(1)
		return
	}
	module, err := wasmer2.CompileModule(engine, wasmBytes)
	if err != nil {
		fmt.Fprintln(stdErr, err)
		exit(1)
		return
	}
	instance, err := wasmer2.NewInstance(wasmer2.NewStore(engine), module, nil)
	if err != nil {
		fmt.Fprintln(stdErr, err)
		exit(1)
		return
	}
	fn, err := instance.GetFunction(funcName)
	if err != nil {
		fmt.Fprintln(stdErr, err)
		exit(1)
		return
	}

	callArgs, err := parseArgs(fn.Type().Params, flags.Args()[2:])
	if err != nil {
		fmt.Fprintln(stdErr, err)
		exit(1)
		return
	}

	results, err := fn.Call(context.Background(), callArgs...)
	if err != nil {
		fmt.Fprintln(stdErr, err)
		exit(1)
		return
	}
	for _, r := range results {
		fmt.Fprintln(stdOut, r)
	}
	exit(0)
}

// parseArgs converts command-line strings per the target signature.
func parseArgs(params []wasmer2.ValueKind, args []string) ([]wasmer2.Value, error) {
	if len(args) != len(params) {
		return nil, fmt.Errorf("expected %d arguments, but %d were supplied", len(params), len(args))
	}
	values := make([]wasmer2.Value, len(args))
	for i, arg := range args {
		switch params[i] {
		case wasmer2.I32:
			v, err := strconv.ParseInt(arg, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("argument[%d]: %v", i, err)
			}
			values[i] = wasmer2.NewI32(int32(v))
		case wasmer2.I64:
			v, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("argument[%d]: %v", i, err)
			}
			values[i] = wasmer2.NewI64(v)
		case wasmer2.F32:
			v, err := strconv.ParseFloat(arg, 32)
			if err != nil {
				return nil, fmt.Errorf("argument[%d]: %v", i, err)
			}
			values[i] = wasmer2.NewF32(float32(v))
		case wasmer2.F64:
			v, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return nil, fmt.Errorf("argument[%d]: %v", i, err)
			}
			values[i] = wasmer2.NewF64(v)
		default:
			return nil, fmt.Errorf("argument[%d]: unsupported parameter type %s", i, params[i])
		}
	}
	return values, nil
}

func printUsage(stdErr io.Writer) {
	fmt.Fprintln(stdErr, "wasmrun runs WebAssembly modules")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:")
	fmt.Fprintln(stdErr, "  wasmrun run <path to wasm file> <function> [args...]")
}

func printRunUsage(stdErr io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(stdErr, "wasmrun run calls an exported function of a wasm file")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:")
	fmt.Fprintln(stdErr, "  wasmrun run [options] <path to wasm file> <function> [args...]")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}
