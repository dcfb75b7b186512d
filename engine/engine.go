// Package engine ties configuration, compilation, the program cache and
// the VM together behind a single Eval call.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/curly/cache"
	"github.com/chazu/curly/compiler"
	"github.com/chazu/curly/manifest"
	"github.com/chazu/curly/vm"
)

var log = commonlog.GetLogger("curly.engine")

// Engine compiles and runs programs under one configuration. It holds no
// VM state of its own, so Eval may be called from several goroutines;
// each call runs on a fresh VM.
type Engine struct {
	cfg       *manifest.Manifest
	cache     *cache.Cache
	ownsCache bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache uses c as the program cache instead of the one named by the
// configuration. The caller keeps ownership of c.
func WithCache(c *cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// New creates an Engine. A nil cfg means manifest.Default(). When the
// configuration enables the cache and none was supplied, New opens it.
func New(cfg *manifest.Manifest, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = manifest.Default()
	}
	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}

	if e.cache == nil && cfg.Cache.Enabled {
		c, err := cache.Open(cfg.CachePath())
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		e.cache = c
		e.ownsCache = true
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() *manifest.Manifest {
	return e.cfg
}

// Cache returns the program cache, or nil when caching is off.
func (e *Engine) Cache() *cache.Cache {
	return e.cache
}

// Close releases the cache if the engine opened it.
func (e *Engine) Close() error {
	if e.ownsCache && e.cache != nil {
		return e.cache.Close()
	}
	return nil
}

// NewVM creates a VM configured from the engine settings. A nil host
// discards output.
func (e *Engine) NewVM(host vm.Host) *vm.VM {
	opts := []vm.Option{
		vm.WithMaxSteps(e.cfg.Engine.MaxSteps),
		vm.WithStackLimit(e.cfg.Engine.StackLimit),
		vm.WithTrace(e.cfg.Engine.Trace),
	}
	if host != nil {
		opts = append(opts, vm.WithHost(host))
	}
	return vm.New(opts...)
}

// ---------------------------------------------------------------------------
// Compilation
// ---------------------------------------------------------------------------

// Compile returns the program for source, consulting the cache first. The
// boolean reports a cache hit.
func (e *Engine) Compile(source string) (*vm.Program, bool, error) {
	hash := vm.SourceHash(source)
	if e.cache != nil {
		prog, err := e.cache.Get(hash)
		if err == nil {
			return prog, true, nil
		}
		if !errors.Is(err, cache.ErrNotFound) {
			log.Warningf("ignoring cache entry: %s", err)
		}
	}

	prog, err := compiler.Compile(source)
	if err != nil {
		return nil, false, err
	}
	if e.cache != nil {
		if err := e.cache.Put(hash, prog); err != nil {
			log.Warningf("caching program: %s", err)
		}
	}
	return prog, false, nil
}

// ---------------------------------------------------------------------------
// Evaluation
// ---------------------------------------------------------------------------

// Result describes one evaluation.
type Result struct {
	RunID    string
	Logs     [][]vm.Value // console.log arguments, in call order
	Output   []string     // Logs rendered as printed lines
	Value    vm.Value     // value left by the last expression, or undefined
	Steps    int
	Cached   bool
	Duration time.Duration
}

// Eval compiles and runs source on a fresh VM, capturing console output.
// On a runtime error the partial Result is returned with the error.
func (e *Engine) Eval(ctx context.Context, source string) (*Result, error) {
	return e.EvalWith(ctx, source, nil)
}

// EvalWith is Eval with output sent to host. A nil host captures output
// into the Result.
func (e *Engine) EvalWith(ctx context.Context, source string, host vm.Host) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prog, cached, err := e.Compile(source)
	if err != nil {
		return nil, err
	}
	res, err := e.Execute(ctx, prog, host)
	if res != nil {
		res.Cached = cached
	}
	return res, err
}

// Execute runs an already compiled program on a fresh VM.
func (e *Engine) Execute(ctx context.Context, prog *vm.Program, host vm.Host) (*Result, error) {
	capture, captured := host.(*vm.CaptureHost)
	if host == nil {
		capture = &vm.CaptureHost{}
		host, captured = capture, true
	}

	res := &Result{RunID: uuid.NewString()}
	machine := e.NewVM(host)
	start := time.Now()
	v, err := machine.RunContext(ctx, prog)
	res.Duration = time.Since(start)
	res.Steps = machine.Steps()
	res.Value = v
	if captured {
		res.Logs = capture.Calls
		res.Output = capture.Lines()
	}

	if err != nil {
		log.Infof("run %s failed after %d steps: %s", res.RunID, res.Steps, err)
		res.Value = vm.Undefined{}
		return res, err
	}
	log.Debugf("run %s: %d steps in %s", res.RunID, res.Steps, res.Duration)
	return res, nil
}
