// Package buildpipeline orchestrates the compilation process: every input
// file is decoded, lowered and emitted as its own unit, units run in
// parallel.
package buildpipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"cilforge/internal/buildcache"
	"cilforge/internal/diag"
	"cilforge/internal/ilasm"
	"cilforge/internal/pe"
	"cilforge/internal/symbols"
	"cilforge/internal/trace"
	"cilforge/internal/version"
)

// BuildRequest configures output generation for a compilation.
type BuildRequest struct {
	CompileRequest
	// OutputDir receives the artifacts; empty means ilasm.DefaultOutputDir.
	OutputDir string
	Backend   Backend
	// Optimize and DebugInfo are handed to the emitter, which ignores them.
	Optimize  bool
	DebugInfo bool
	// Validate runs the smoke check over listings. It has no effect on images.
	Validate bool
	Cache    *buildcache.Cache
	// DryRun emits into memory only: nothing is written and the cache is
	// neither read nor filled.
	DryRun bool
	// Now stamps listing headers; nil means time.Now.
	Now func() time.Time
}

// Artifact is one written output.
type Artifact struct {
	Unit   string
	Path   string
	Size   int
	Cached bool
	// Image is set for freshly emitted PE artifacts.
	Image *pe.Image
}

// BuildResult captures build artefacts and timings.
type BuildResult struct {
	Artifacts []Artifact
	Units     []*Unit
	Bag       *diag.Bag
	Timings   Timings
}

// Build compiles every file and writes one artifact per unit. Units that
// fail do not stop the others; the error joins all unit failures.
func Build(ctx context.Context, req *BuildRequest) (BuildResult, error) {
	var result BuildResult
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil {
		return result, fmt.Errorf("missing build request")
	}
	reqCopy := *req
	req = &reqCopy
	if req.Backend == "" {
		req.Backend = BackendPE
	}
	if _, err := ParseBackend(string(req.Backend)); err != nil {
		return result, err
	}
	if req.OutputDir == "" {
		req.OutputDir = ilasm.DefaultOutputDir()
	}
	if req.Tracer == nil {
		req.Tracer = trace.FromContext(ctx)
	}

	span := trace.Begin(req.Tracer, trace.ScopePass, "build", trace.CurrentSpan(ctx).SpanID)
	defer span.End("")
	ctx = trace.WithSpanContext(ctx, trace.SpanContext{SpanID: span.ID()})

	compileRes, compileErr := Compile(ctx, &req.CompileRequest)
	result.Units = compileRes.Units
	result.Bag = compileRes.Bag
	result.Timings = compileRes.Timings
	if len(compileRes.Units) == 0 {
		return result, compileErr
	}
	var cancelled error
	if compileErr != nil && (errors.Is(compileErr, context.Canceled) || errors.Is(compileErr, context.DeadlineExceeded)) {
		return result, compileErr
	}

	pending := make([]*Unit, 0, len(compileRes.Units))
	for _, u := range compileRes.Units {
		if !u.Failed() {
			pending = append(pending, u)
		}
	}
	artifacts := make([]*Artifact, len(pending))

	if len(pending) > 0 {
		emitStage(req.Progress, StageEmit, StatusWorking, nil, 0)
		start := time.Now()
		jobs := req.Jobs
		if jobs <= 0 {
			jobs = runtime.GOMAXPROCS(0)
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(min(jobs, len(pending)))
		for i, u := range pending {
			g.Go(func(i int, u *Unit) func() error {
				return func() error {
					select {
					case <-gctx.Done():
						return gctx.Err()
					default:
					}
					artifacts[i] = emitUnit(u, req, compileRes.Symbols, span.ID())
					return nil
				}
			}(i, u))
		}
		cancelled = g.Wait()
		emitStage(req.Progress, StageEmit, StatusDone, cancelled, time.Since(start))
	}

	for _, a := range artifacts {
		if a != nil {
			result.Artifacts = append(result.Artifacts, *a)
		}
	}
	result.Bag = collect(compileRes.Units, req.MaxDiagnostics)
	result.Timings = sumTimings(compileRes.Units)
	if cancelled != nil {
		return result, cancelled
	}
	return result, unitErrors(compileRes.Units)
}

// EmitIL is Build with the listing backend.
func EmitIL(ctx context.Context, req *BuildRequest) (BuildResult, error) {
	if req == nil {
		return BuildResult{}, fmt.Errorf("missing build request")
	}
	reqCopy := *req
	reqCopy.Backend = BackendIL
	return Build(ctx, &reqCopy)
}

// CacheKey covers everything that changes the artifact of u.
func CacheKey(u *Unit, req *BuildRequest, syms *symbols.Table) buildcache.Digest {
	return buildcache.Key(u.Source.Digest,
		string(req.Backend),
		syms.Fingerprint(),
		version.Plain(),
		strconv.FormatBool(req.Validate),
	)
}

// emitUnit produces and writes the artifact of one lowered unit. Diagnostics
// raised while emitting go to a separate bag so they can be cached and
// replayed on a hit.
func emitUnit(u *Unit, req *BuildRequest, syms *symbols.Table, parent uint64) *Artifact {
	span := trace.BeginUnit(req.Tracer, u.Display, "emit", parent)
	defer span.End("")

	emitted := diag.NewBag(req.MaxDiagnostics)
	rep := diag.BagReporter{Bag: emitted}
	unitRep := diag.BagReporter{Bag: u.Bag}
	defer u.Bag.Merge(emitted)

	art := &Artifact{Unit: u.Display, Path: artifactPath(u, req)}
	key := CacheKey(u, req, syms)

	cache := req.Cache
	if req.DryRun {
		cache = nil
	}
	payload, hit, err := cache.Get(key)
	if err != nil {
		diag.ReportWarning(unitRep, diag.PipeCacheFailed, diag.At(u.Name(), ""),
			fmt.Sprintf("reading cache entry %s: %v", key, err)).Emit()
	}
	if hit && payload.Backend == string(req.Backend) {
		span.WithExtra("cache", "hit")
		u.Err = u.stage(&req.CompileRequest, StageWrite, func() error {
			return writeArtifact(art, req.Backend, payload.Image, payload.Listing)
		})
		if u.Err != nil {
			diag.ReportError(unitRep, diag.PipeWriteFailed, diag.At(u.Name(), ""), u.Err.Error()).Emit()
			return nil
		}
		buildcache.Replay(rep, payload.Diagnostics)
		art.Cached = true
		emitFile(req.Progress, u.Display, StageWrite, StatusCached, nil, 0)
		return art
	}

	var (
		image   []byte
		listing string
	)
	u.Err = u.stage(&req.CompileRequest, StageEmit, func() error {
		switch req.Backend {
		case BackendIL:
			text, err := ilasm.Emit(u.Decl, ilasm.Options{
				Now:         req.Now,
				Transformer: u.Transformer,
				Symbols:     syms,
				Reporter:    rep,
			})
			if err != nil {
				diag.ReportError(rep, diag.PipeEmitFailed, diag.At(u.Name(), ""), err.Error()).Emit()
				return err
			}
			if req.Validate {
				if err := ilasm.Validate(text); err != nil {
					diag.ReportError(rep, diag.PipeValidateFailed, diag.At(u.Name(), ""), err.Error()).Emit()
					return err
				}
			}
			listing = text
		default:
			img, err := pe.Build(u.Decl, pe.Options{
				Transformer: u.Transformer,
				Symbols:     syms,
				Reporter:    rep,
				Tracer:      req.Tracer,
				TraceParent: span.ID(),
				Optimize:    req.Optimize,
				DebugInfo:   req.DebugInfo,
			})
			if err != nil {
				diag.ReportError(rep, diag.PipeEmitFailed, diag.At(u.Name(), ""), err.Error()).Emit()
				return err
			}
			art.Image = img
			image = img.Bytes
		}
		return nil
	})
	if u.Err != nil {
		return nil
	}
	if req.DryRun {
		art.Path = ""
		art.Size = len(image) + len(listing)
		return art
	}

	u.Err = u.stage(&req.CompileRequest, StageWrite, func() error {
		return writeArtifact(art, req.Backend, image, listing)
	})
	if u.Err != nil {
		diag.ReportError(rep, diag.PipeWriteFailed, diag.At(u.Name(), ""), u.Err.Error()).Emit()
		return nil
	}

	if cache != nil {
		err := cache.Put(key, &buildcache.Payload{
			Unit:        u.Name(),
			Backend:     string(req.Backend),
			Image:       image,
			Listing:     listing,
			Diagnostics: buildcache.Record(emitted.Items()),
		})
		if err != nil {
			diag.ReportWarning(unitRep, diag.PipeCacheFailed, diag.At(u.Name(), ""),
				fmt.Sprintf("storing cache entry %s: %v", key, err)).Emit()
		}
	}
	return art
}

func artifactPath(u *Unit, req *BuildRequest) string {
	if req.Backend == BackendIL {
		return filepath.Join(req.OutputDir, u.Decl.Name+BackendIL.Ext())
	}
	return filepath.Join(req.OutputDir, u.Decl.Module.FileName)
}

func writeArtifact(art *Artifact, backend Backend, image []byte, listing string) error {
	if backend == BackendIL {
		path, err := ilasm.WriteFile(filepath.Dir(art.Path), trimExt(filepath.Base(art.Path)), listing)
		if err != nil {
			return err
		}
		art.Path, art.Size = path, len(listing)
		return nil
	}
	if len(image) == 0 {
		return fmt.Errorf("empty image for %s", art.Path)
	}
	if err := pe.WriteImage(art.Path, image); err != nil {
		return err
	}
	art.Size = len(image)
	return nil
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
