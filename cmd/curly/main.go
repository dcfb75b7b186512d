// curly CLI - the main entry point for running curly programs
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/curly/engine"
	"github.com/chazu/curly/manifest"
	"github.com/chazu/curly/server"
	"github.com/chazu/curly/vm"
)

var log = commonlog.GetLogger("curly.cli")

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	configDir := flag.String("config", "", "Directory to search upwards for curly.toml (default: current directory)")
	interactive := flag.Bool("i", false, "Start interactive REPL")
	disassemble := flag.Bool("dis", false, "Print the compiled bytecode instead of running")
	emitPath := flag.String("emit", "", "Write the compiled program image to this path instead of running")
	loadPath := flag.String("load", "", "Run a program image written by -emit")
	emitBytesPath := flag.String("emit-bytes", "", "Write the compiled instructions in the flat byte encoding to this path instead of running")
	loadBytesPath := flag.String("load-bytes", "", "Run instructions written by -emit-bytes")
	serveMode := flag.Bool("serve", false, "Start the evaluation service (Connect HTTP/JSON + gRPC)")
	lspMode := flag.Bool("lsp", false, "Start the language server on stdio")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: curly [options] [file.cy]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles and runs a curly program. Without a file, runs the project entry\n")
		fmt.Fprintf(os.Stderr, "from curly.toml, or starts the REPL.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  curly main.cy                  # Run a program\n")
		fmt.Fprintf(os.Stderr, "  curly -i                       # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  curly -dis main.cy             # Show bytecode\n")
		fmt.Fprintf(os.Stderr, "  curly -emit main.cyb main.cy   # Compile to an image\n")
		fmt.Fprintf(os.Stderr, "  curly -load main.cyb           # Run an image\n")
		fmt.Fprintf(os.Stderr, "  curly -emit-bytes main.bin main.cy  # Compile to flat bytecode\n")
		fmt.Fprintf(os.Stderr, "  curly -load-bytes main.bin     # Run flat bytecode\n")
		fmt.Fprintf(os.Stderr, "\nServers:\n")
		fmt.Fprintf(os.Stderr, "  curly -serve                   # Evaluation service on [server] addr and grpc-addr\n")
		fmt.Fprintf(os.Stderr, "  curly -lsp                     # Language server on stdio\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	// The language server needs no engine and owns stdout.
	if *lspMode {
		if err := server.NewLSP().Run(); err != nil {
			fatal(err)
		}
		return
	}

	cfg, err := loadConfig(*configDir)
	if err != nil {
		fatal(err)
	}
	e, err := engine.New(cfg)
	if err != nil {
		fatal(err)
	}
	defer e.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if *serveMode {
		srv := server.New(e)
		defer srv.Stop()
		if err := srv.Serve(ctx, cfg.Server.Addr, cfg.Server.GRPCAddr); err != nil {
			fatal(fmt.Errorf("server: %w", err))
		}
		return
	}

	if *loadPath != "" {
		if err := runImage(ctx, e, *loadPath, os.Stdout); err != nil {
			fatal(err)
		}
		return
	}
	if *loadBytesPath != "" {
		if err := runBytecode(ctx, e, *loadBytesPath, os.Stdout); err != nil {
			fatal(err)
		}
		return
	}

	path := flag.Arg(0)
	if path == "" {
		path = cfg.EntryPath()
	}
	if *interactive || path == "" {
		runREPL(ctx, e, os.Stdin, os.Stdout)
		return
	}

	source, err := os.ReadFile(path)
	if err != nil {
		fatal(err)
	}

	switch {
	case *disassemble:
		prog, _, err := e.Compile(string(source))
		if err != nil {
			fatal(fmt.Errorf("%s: %w", path, err))
		}
		fmt.Println(vm.Disassemble(prog))
	case *emitPath != "":
		if _, err := e.SaveImage(*emitPath, string(source)); err != nil {
			fatal(fmt.Errorf("%s: %w", path, err))
		}
	case *emitBytesPath != "":
		if err := writeBytecode(e, string(source), *emitBytesPath); err != nil {
			fatal(fmt.Errorf("%s: %w", path, err))
		}
	default:
		if err := runSource(ctx, e, string(source), os.Stdout); err != nil {
			fatal(fmt.Errorf("%s: %w", path, err))
		}
	}
}

// loadConfig finds curly.toml starting at dir. A missing manifest is not
// an error; the defaults are used instead.
func loadConfig(dir string) (*manifest.Manifest, error) {
	if dir == "" {
		dir = "."
	}
	cfg, err := manifest.FindAndLoad(dir)
	if errors.Is(err, manifest.ErrNoManifest) {
		log.Debugf("no %s above %s, using defaults", manifest.FileName, dir)
		return manifest.Default(), nil
	}
	return cfg, err
}

// runSource compiles and runs source, printing console output to out.
func runSource(ctx context.Context, e *engine.Engine, source string, out io.Writer) error {
	res, err := e.EvalWith(ctx, source, &vm.WriterHost{W: out})
	if res != nil {
		log.Debugf("run %s: %d steps in %s (cached: %t)", res.RunID, res.Steps, res.Duration, res.Cached)
	}
	return err
}

// runImage runs a program image, printing console output to out.
func runImage(ctx context.Context, e *engine.Engine, path string, out io.Writer) error {
	prog, err := engine.LoadImage(path)
	if err != nil {
		return err
	}
	res, err := e.Execute(ctx, prog, &vm.WriterHost{W: out})
	if res != nil {
		log.Debugf("run %s: %d steps in %s", res.RunID, res.Steps, res.Duration)
	}
	return err
}

// writeBytecode compiles source and writes its instructions in the flat
// byte encoding. Unlike an image, the file has no line table or header.
func writeBytecode(e *engine.Engine, source, path string) error {
	prog, _, err := e.Compile(source)
	if err != nil {
		return err
	}
	data, err := vm.Encode(prog)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// runBytecode runs a file written by writeBytecode.
func runBytecode(ctx context.Context, e *engine.Engine, path string, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	prog, err := vm.Decode(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	res, err := e.Execute(ctx, prog, &vm.WriterHost{W: out})
	if res != nil {
		log.Debugf("run %s: %d steps in %s", res.RunID, res.Steps, res.Duration)
	}
	return err
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
