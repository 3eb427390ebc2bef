package buildpipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"cilforge/internal/astio"
	"cilforge/internal/diag"
	"cilforge/internal/il"
	"cilforge/internal/lower"
	"cilforge/internal/observ"
	"cilforge/internal/symbols"
	"cilforge/internal/trace"
)

// CompileRequest configures the shared compilation pipeline.
type CompileRequest struct {
	Files []string
	// BaseDir shortens file names in progress events and diagnostics.
	BaseDir        string
	Symbols        *symbols.Table
	MaxDiagnostics int
	// Jobs bounds the units compiled at once; 0 means GOMAXPROCS.
	Jobs     int
	Progress ProgressSink
	Tracer   trace.Tracer
	Timer    *observ.Timer
}

// Unit is one input file carried through the pipeline. Every unit has its
// own bag so parallel units never share diagnostics state.
type Unit struct {
	Path    string
	Display string
	Source  *astio.Unit
	Decl    *il.AssemblyDeclaration
	// Transformer lowered Decl; the emitters reuse it for the bodies.
	Transformer *lower.Transformer
	Bag         *diag.Bag
	Err         error

	times map[Stage]time.Duration
}

// Name is the assembly name once decoded, the display path before.
func (u *Unit) Name() string {
	if u.Source != nil {
		return u.Source.Name()
	}
	return u.Display
}

// Failed reports whether the unit stopped before producing an artifact.
func (u *Unit) Failed() bool { return u.Err != nil }

// CompileResult captures compilation artefacts and stage timings.
type CompileResult struct {
	Units   []*Unit
	Bag     *diag.Bag
	Symbols *symbols.Table
	Timings Timings
}

// Compile decodes and lowers every file in parallel. A failing unit does not
// stop the others; the returned error joins the failures of all units.
func Compile(ctx context.Context, req *CompileRequest) (CompileResult, error) {
	var result CompileResult
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil {
		return result, fmt.Errorf("missing compile request")
	}
	if len(req.Files) == 0 {
		return result, fmt.Errorf("no input files")
	}
	syms := req.Symbols
	if syms == nil {
		syms = symbols.Default()
	}
	result.Symbols = syms
	tracer := req.Tracer
	if tracer == nil {
		tracer = trace.FromContext(ctx)
	}
	span := trace.Begin(tracer, trace.ScopePass, "compile", trace.CurrentSpan(ctx).SpanID)
	defer span.End("")

	units := make([]*Unit, len(req.Files))
	for i, path := range req.Files {
		units[i] = &Unit{
			Path:    path,
			Display: DisplayPath(path, req.BaseDir),
			Bag:     diag.NewBag(req.MaxDiagnostics),
			times:   make(map[Stage]time.Duration, 4),
		}
	}
	result.Units = units
	emitQueued(req.Progress, units)

	jobs := req.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(units)))
	for _, u := range units {
		g.Go(func(u *Unit) func() error {
			return func() error {
				// Проверка отмены
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				compileUnit(u, req, syms, tracer, span.ID())
				return nil
			}
		}(u))
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	result.Bag = collect(units, req.MaxDiagnostics)
	result.Timings = sumTimings(units)
	return result, unitErrors(units)
}

func compileUnit(u *Unit, req *CompileRequest, syms *symbols.Table, tracer trace.Tracer, parent uint64) {
	span := trace.BeginUnit(tracer, u.Display, "compile", parent)
	defer func() {
		if u.Err != nil {
			span.End("failed")
			return
		}
		span.End("")
	}()
	rep := diag.NewDedupReporter(diag.BagReporter{Bag: u.Bag})

	u.Err = u.stage(req, StageDecode, func() error {
		src, err := astio.ReadFile(u.Path)
		if err != nil {
			diag.ReportError(rep, diag.PipeDecodeFailed, diag.At(u.Display, ""), err.Error()).Emit()
			return err
		}
		u.Source = src
		return nil
	})
	if u.Err != nil {
		return
	}

	u.Err = u.stage(req, StageLower, func() error {
		tr := lower.New(syms).WithReporter(rep)
		decl, err := tr.Transform(u.Source.Assembly)
		if err != nil {
			diag.ReportError(rep, diag.PipeInvalidAST, diag.At(u.Name(), ""), err.Error()).Emit()
			return err
		}
		u.Decl, u.Transformer = decl, tr
		CheckEntrypoint(decl, rep)
		return nil
	})
}

// stage runs fn as one stage of u, reporting progress and timing around it.
func (u *Unit) stage(req *CompileRequest, stage Stage, fn func() error) error {
	emitFile(req.Progress, u.Display, stage, StatusWorking, nil, 0)
	start := time.Now()
	err := req.Timer.Track(string(stage), u.Display, fn)
	elapsed := time.Since(start)
	u.times[stage] += elapsed
	if err != nil {
		emitFile(req.Progress, u.Display, stage, StatusError, err, elapsed)
		return fmt.Errorf("%s: %s: %w", u.Display, stage, err)
	}
	emitFile(req.Progress, u.Display, stage, StatusDone, nil, elapsed)
	return nil
}

// collect merges the unit bags once all units finished.
func collect(units []*Unit, maxDiagnostics int) *diag.Bag {
	bag := diag.NewBag(maxDiagnostics)
	for _, u := range units {
		bag.Merge(u.Bag)
	}
	bag.Dedup()
	bag.Sort()
	return bag
}

func sumTimings(units []*Unit) Timings {
	var t Timings
	for _, u := range units {
		for stage, d := range u.times {
			t.Add(stage, d)
		}
	}
	return t
}

func unitErrors(units []*Unit) error {
	var errs []error
	for _, u := range units {
		if u.Err != nil {
			errs = append(errs, u.Err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d units failed: %w", len(errs), len(units), errors.Join(errs...))
}

func emitQueued(sink ProgressSink, units []*Unit) {
	if sink == nil {
		return
	}
	for _, u := range units {
		sink.OnEvent(Event{File: u.Display, Stage: StageDecode, Status: StatusQueued})
	}
}

func emitFile(sink ProgressSink, file string, stage Stage, status Status, err error, elapsed time.Duration) {
	if sink == nil {
		return
	}
	sink.OnEvent(Event{File: file, Stage: stage, Status: status, Err: err, Elapsed: elapsed})
}

func emitStage(sink ProgressSink, stage Stage, status Status, err error, elapsed time.Duration) {
	if sink == nil {
		return
	}
	sink.OnEvent(Event{Stage: stage, Status: status, Err: err, Elapsed: elapsed})
}
