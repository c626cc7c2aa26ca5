// Pipeline wires the Candidate Builder, Metadata Processor, Path Planner
// and atomic writer into the single-file path a Pool worker goroutine
// drives, reusing converter/vips.go's "decode, transform, encode, write"
// shape (confirmed against the teacher's pdf.go and vips.go) but routed
// through job.FileJob's state machine instead of that file's inline
// error returns.
package worker

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/surfgoffdude/optiq/internal/atomicio"
	"github.com/surfgoffdude/optiq/internal/candidate"
	"github.com/surfgoffdude/optiq/internal/config"
	"github.com/surfgoffdude/optiq/internal/ferr"
	"github.com/surfgoffdude/optiq/internal/imageio"
	"github.com/surfgoffdude/optiq/internal/job"
	"github.com/surfgoffdude/optiq/internal/metaproc"
	"github.com/surfgoffdude/optiq/internal/pathplan"
	"github.com/surfgoffdude/optiq/internal/responsive"
	"github.com/surfgoffdude/optiq/internal/runid"
	"github.com/surfgoffdude/optiq/internal/scanner"
	"github.com/surfgoffdude/optiq/internal/storage"
	"github.com/surfgoffdude/optiq/internal/toolrunner"
)

// Pipeline turns one scanner.File into a finished job.FileJob: decode,
// bake in orientation and metadata policy, search for the smallest
// candidate encode that clears the quality guard, and atomically write
// the winner. One Pipeline is shared read-only across every worker
// goroutine in a Pool.
type Pipeline struct {
	Mode          config.RunMode
	Settings      config.EffectiveSettings
	Runners       map[string]toolrunner.Runner
	Builder       *candidate.Builder
	Storage       *storage.Storage
	CommonRoot    string
	BackupDir     string
	OutParamsHash string
	DryRun        bool
}

// NewPipeline builds a Pipeline from a resolved run configuration.
func NewPipeline(mode config.RunMode, settings config.EffectiveSettings, runners map[string]toolrunner.Runner, builder *candidate.Builder, store *storage.Storage, commonRoot, backupDir, outParamsHash string, dryRun bool) *Pipeline {
	return &Pipeline{
		Mode:          mode,
		Settings:      settings,
		Runners:       runners,
		Builder:       builder,
		Storage:       store,
		CommonRoot:    commonRoot,
		BackupDir:     backupDir,
		OutParamsHash: outParamsHash,
		DryRun:        dryRun,
	}
}

// Run drives f through the full pipeline, returning the FileJob in
// whatever terminal state it reached. It never panics on a malformed
// input; every failure mode becomes a job.Fail with a classified ferr.Error.
func (p *Pipeline) Run(ctx context.Context, f scanner.File, cancelFlag *job.CancelFlag) *job.FileJob {
	fj := job.NewFileJob(runid.Short(), f.Path)

	startRes, err := p.Storage.TryStartJob(storage.FileInfo{Path: f.Path, Size: f.Size, Mtime: f.Mtime}, p.OutParamsHash)
	if err != nil {
		_ = fj.Start()
		_ = fj.Fail(ferr.New(ferr.EUnknown, "checking job state", err))
		return fj
	}
	if !startRes.Started {
		_ = fj.Skip(startRes.SkipReason)
		return fj
	}

	if err := fj.Start(); err != nil {
		return fj
	}

	if cancelFlag.IsSet() {
		_ = fj.Cancel()
		_ = p.Storage.FinalizeJobSkipped(startRes.JobID, "cancelled before analyzing")
		return fj
	}

	srcBytes, err := os.ReadFile(f.Path)
	if err != nil {
		return p.fail(fj, startRes.JobID, ferr.EDecode, "reading source file", err)
	}

	if err := fj.Advance(job.PhaseDecoding); err != nil {
		return fj
	}
	decoded, err := imageio.Decode(srcBytes)
	if err != nil {
		return p.fail(fj, startRes.JobID, ferr.EDecode, "decoding source image", err)
	}

	if err := fj.Advance(job.PhaseTransforming); err != nil {
		return fj
	}
	transformed, _, err := metaproc.Process(decoded.Image, srcBytes, p.Settings.Metadata)
	if err != nil {
		return p.fail(fj, startRes.JobID, ferr.EDecode, "applying metadata policy", err)
	}
	nrgba := imageio.ToNRGBA(transformed)
	w, h := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()
	lum := imageio.Luminance(nrgba)
	src := candidate.Source{
		Image:       &decoded,
		Luminance:   lum,
		Width:       w,
		Height:      h,
		IsPhoto:     imageio.IsPhoto(lum, w, h),
		SourceBytes: srcBytes,
	}

	if p.Mode == config.ModeResponsive {
		return p.runResponsive(ctx, fj, startRes.JobID, f, decoded, nrgba, w, h, cancelFlag)
	}

	if err := fj.Advance(job.PhaseEncoding); err != nil {
		return fj
	}
	targetFormat := p.resolveFormat(decoded.Format)
	strategy, err := p.buildStrategy(targetFormat, nrgba)
	if err != nil {
		return p.fail(fj, startRes.JobID, ferr.EUnsupported, "selecting an encode strategy", err)
	}

	cand, err := p.search(ctx, src, strategy, targetFormat)
	if err != nil {
		return p.fail(fj, startRes.JobID, ferr.EEncode, "searching for a candidate encode", err)
	}
	if cand.Skipped || len(cand.Data) == 0 {
		_ = fj.Skip("no encoder produced usable output")
		_ = p.Storage.FinalizeJobSkipped(startRes.JobID, "no encoder produced usable output")
		return fj
	}

	if p.Settings.SSIMGuardOn && !cand.PassesThreshold(p.guardThreshold(targetFormat)) {
		_ = fj.Skip("no candidate met threshold")
		_ = p.Storage.FinalizeJobSkipped(startRes.JobID, "no candidate met threshold")
		return fj
	}

	if targetFormat == candidate.FormatPNG {
		cand.Data = p.finishPNG(ctx, cand.Data)
	}

	if !p.Settings.AllowLargerOutput && len(cand.Data) >= len(srcBytes) {
		_ = fj.Skip("candidate would not shrink the file")
		_ = p.Storage.FinalizeJobSkipped(startRes.JobID, "candidate would not shrink the file")
		return fj
	}

	if err := fj.Advance(job.PhaseWriting); err != nil {
		return fj
	}
	if fj.ShouldAbandonResult(cancelFlag) {
		_ = fj.Cancel()
		_ = p.Storage.FinalizeJobSkipped(startRes.JobID, "cancelled before writing")
		return fj
	}

	dst, err := pathplan.Plan(pathplan.Input{
		Path:       f.Path,
		CommonRoot: p.CommonRoot,
		Width:      w,
		Height:     h,
		Format:     cand.Format,
		IsTIFF:     decoded.Format == imageio.FormatTIFF,
	}, p.Settings, nil)
	if err != nil {
		return p.fail(fj, startRes.JobID, ferr.EWrite, "planning output path", err)
	}

	if p.DryRun {
		if err := fj.Advance(job.PhaseVerifying); err != nil {
			return fj
		}
		if err := fj.Advance(job.PhaseCleaning); err != nil {
			return fj
		}
		_ = fj.Succeed(job.Result{OutputPath: dst, InputBytes: f.Size, OutputBytes: int64(len(cand.Data)), Strategy: cand.Strategy, Quality: cand.Quality, MSSIM: cand.MSSIM, EdgeSSIM: cand.EdgeSSIM})
		_ = p.Storage.FinalizeJobSkipped(startRes.JobID, "dry run")
		return fj
	}

	writeRes, err := atomicio.Write(dst, cand.Data, atomicio.Options{
		ExpectedFormat: imageio.Format(cand.Format),
		BackupDir:      p.BackupDir,
	})
	if err != nil {
		return p.fail(fj, startRes.JobID, ferr.EWrite, "writing output file", err)
	}

	if err := fj.Advance(job.PhaseVerifying); err != nil {
		return fj
	}
	if err := fj.Advance(job.PhaseCleaning); err != nil {
		return fj
	}
	if hash, err := scanner.PartialHash(f.Path); err == nil {
		_ = p.Storage.MarkProcessed(f.Path, f.Size, f.Mtime, hash)
	}

	if p.Mode == config.ModeOptimizeAndWebP && targetFormat != candidate.FormatWebP {
		p.writeWebPSibling(ctx, src, nrgba, dst)
	}

	_ = fj.Succeed(job.Result{
		OutputPath:  dst,
		BackupPath:  writeRes.BackupPath,
		InputBytes:  f.Size,
		OutputBytes: int64(len(cand.Data)),
		Strategy:    cand.Strategy,
		Quality:     cand.Quality,
		MSSIM:       cand.MSSIM,
		EdgeSSIM:    cand.EdgeSSIM,
	})
	_ = p.Storage.FinalizeJobOK(startRes.JobID, dst, cand.MSSIM, cand.BandingRisk, string(cand.Format), qualityLabel(cand.Quality))
	return fj
}

func (p *Pipeline) fail(fj *job.FileJob, jobID int64, code ferr.Code, msg string, cause error) *job.FileJob {
	fe := ferr.New(code, msg, cause)
	_ = fj.Fail(fe)
	_ = p.Storage.FinalizeJobFailed(jobID, fe.Error())
	return fj
}

// search runs the Candidate Builder's smart binary search or fixed
// quality ladder, per the run's Mode, and returns the winner.
func (p *Pipeline) search(ctx context.Context, src candidate.Source, strategy candidate.Strategy, format candidate.Format) (candidate.Candidate, error) {
	if p.Mode == config.ModeSmart {
		return p.Builder.Smart(ctx, src, strategy, p.Settings.SmartThreshold())
	}
	aggressive := format == candidate.FormatPNG && p.Settings.AggressivePNG
	return p.Builder.Ladder(ctx, src, strategy, p.Settings.SSIMThreshold(aggressive))
}

// guardThreshold returns the same threshold search used for format, so the
// post-search guard check in Run compares against exactly what the search
// itself targeted.
func (p *Pipeline) guardThreshold(format candidate.Format) float64 {
	if p.Mode == config.ModeSmart {
		return p.Settings.SmartThreshold()
	}
	aggressive := format == candidate.FormatPNG && p.Settings.AggressivePNG
	return p.Settings.SSIMThreshold(aggressive)
}

// finishPNG runs a lossless oxipng pass over an already-quantized PNG
// candidate, keeping whichever result is smaller — oxipng's lossless
// optimization strictly helps or is a no-op, never a quality trade.
func (p *Pipeline) finishPNG(ctx context.Context, data []byte) []byte {
	oxi, ok := p.Runners["oxipng"]
	if !ok {
		return data
	}
	res, err := oxi.Encode(ctx, data, toolrunner.EncodeOptions{Lossless: true})
	if err != nil || res.Skipped || len(res.Data) == 0 || len(res.Data) >= len(data) {
		return data
	}
	return res.Data
}

// resolveFormat picks the output container format for a run's Mode.
// ModeOptimizeAndWebP still optimizes the source's own format as the
// primary output; the WebP sibling is generated separately in Run.
func (p *Pipeline) resolveFormat(srcFormat imageio.Format) candidate.Format {
	if p.Mode == config.ModeConvertWebP {
		return candidate.FormatWebP
	}
	switch srcFormat {
	case imageio.FormatPNG:
		return candidate.FormatPNG
	case imageio.FormatWebP:
		return candidate.FormatWebP
	default:
		return candidate.FormatJPEG
	}
}

// buildStrategy returns the candidate.Strategy for format, pre-encoding
// the source pixel buffer into whichever byte shape that format's
// external tool reads from stdin (spec.md §4.1).
func (p *Pipeline) buildStrategy(format candidate.Format, nrgba *image.NRGBA) (candidate.Strategy, error) {
	switch format {
	case candidate.FormatJPEG:
		runner, ok := p.Runners["cjpeg"]
		if !ok {
			return candidate.Strategy{}, fmt.Errorf("no cjpeg runner configured")
		}
		ppm := imageio.EncodeAsPPM(nrgba)
		return candidate.Strategy{
			Name:   "cjpeg",
			Format: candidate.FormatJPEG,
			Encode: func(ctx context.Context, q int) (candidate.Candidate, error) {
				res, err := runner.Encode(ctx, ppm, toolrunner.EncodeOptions{Quality: q})
				if err != nil {
					return candidate.Candidate{}, err
				}
				return candidate.Candidate{Data: res.Data, Skipped: res.Skipped}, nil
			},
		}, nil

	case candidate.FormatWebP:
		runner, ok := p.Runners["cwebp"]
		if !ok {
			return candidate.Strategy{}, fmt.Errorf("no cwebp runner configured")
		}
		png, err := imageio.EncodeAsPNG(nrgba)
		if err != nil {
			return candidate.Strategy{}, err
		}
		return candidate.Strategy{
			Name:   "cwebp",
			Format: candidate.FormatWebP,
			Encode: func(ctx context.Context, q int) (candidate.Candidate, error) {
				res, err := runner.Encode(ctx, png, toolrunner.EncodeOptions{
					Quality:      q,
					Effort:       p.Settings.WebPEffort,
					NearLossless: p.Settings.NearLossless,
				})
				if err != nil {
					return candidate.Candidate{}, err
				}
				return candidate.Candidate{Data: res.Data, Skipped: res.Skipped}, nil
			},
		}, nil

	case candidate.FormatPNG:
		runner, ok := p.Runners["pngquant"]
		if !ok {
			return candidate.Strategy{}, fmt.Errorf("no pngquant runner configured")
		}
		png, err := imageio.EncodeAsPNG(nrgba)
		if err != nil {
			return candidate.Strategy{}, err
		}
		return candidate.Strategy{
			Name:   "pngquant",
			Format: candidate.FormatPNG,
			Encode: func(ctx context.Context, q int) (candidate.Candidate, error) {
				res, err := runner.Encode(ctx, png, toolrunner.EncodeOptions{Quality: q})
				if err != nil {
					return candidate.Candidate{}, err
				}
				return candidate.Candidate{Data: res.Data, Skipped: res.Skipped}, nil
			},
		}, nil

	default:
		return candidate.Strategy{}, fmt.Errorf("unsupported target format %s", format)
	}
}

// writeWebPSibling generates an additional .webp file next to an
// already-written optimized primary output, for ModeOptimizeAndWebP.
// It is best-effort: a failure here doesn't fail the file's job, since
// the primary output already succeeded.
func (p *Pipeline) writeWebPSibling(ctx context.Context, src candidate.Source, nrgba *image.NRGBA, primaryDst string) {
	strategy, err := p.buildStrategy(candidate.FormatWebP, nrgba)
	if err != nil {
		return
	}
	cand, err := p.search(ctx, src, strategy, candidate.FormatWebP)
	if err != nil || cand.Skipped || len(cand.Data) == 0 {
		return
	}
	if p.Settings.SSIMGuardOn && !cand.PassesThreshold(p.guardThreshold(candidate.FormatWebP)) {
		return
	}
	dst := strings.TrimSuffix(primaryDst, filepath.Ext(primaryDst)) + ".webp"
	_, _ = atomicio.Write(dst, cand.Data, atomicio.Options{ExpectedFormat: imageio.FormatWebP})
}

// qualityLabel renders a candidate's quality for storage, distinguishing
// a lossless (quality 0, oxipng-only) result from a numeric setting.
func qualityLabel(q int) string {
	if q <= 0 {
		return "lossless"
	}
	return fmt.Sprintf("q%d", q)
}

// PreviewResult is the no-write encode outcome Pipeline.Preview returns,
// the buffer/size/quality_label/ssim shape spec.md §6's Preview{path,
// settings} external interface specifies.
type PreviewResult struct {
	Buffer       []byte
	Size         int64
	QualityLabel string
	SSIM         float64
}

// Preview runs a smart-mode search for path and returns its winning
// candidate without writing anything, for a UI's before/after preview.
// It always searches via Builder.Smart regardless of p.Mode, per spec.md
// §6's "smart-mode encode of a single file, no write".
func (p *Pipeline) Preview(ctx context.Context, path string) (PreviewResult, error) {
	srcBytes, err := os.ReadFile(path)
	if err != nil {
		return PreviewResult{}, fmt.Errorf("reading source file: %w", err)
	}
	decoded, err := imageio.Decode(srcBytes)
	if err != nil {
		return PreviewResult{}, fmt.Errorf("decoding source image: %w", err)
	}
	transformed, _, err := metaproc.Process(decoded.Image, srcBytes, p.Settings.Metadata)
	if err != nil {
		return PreviewResult{}, fmt.Errorf("applying metadata policy: %w", err)
	}
	nrgba := imageio.ToNRGBA(transformed)
	w, h := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()
	lum := imageio.Luminance(nrgba)
	src := candidate.Source{
		Image:       &decoded,
		Luminance:   lum,
		Width:       w,
		Height:      h,
		IsPhoto:     imageio.IsPhoto(lum, w, h),
		SourceBytes: srcBytes,
	}

	targetFormat := p.resolveFormat(decoded.Format)
	strategy, err := p.buildStrategy(targetFormat, nrgba)
	if err != nil {
		return PreviewResult{}, fmt.Errorf("selecting an encode strategy: %w", err)
	}

	cand, err := p.Builder.Smart(ctx, src, strategy, p.Settings.SmartThreshold())
	if err != nil {
		return PreviewResult{}, fmt.Errorf("searching for a preview candidate: %w", err)
	}
	if cand.Skipped || len(cand.Data) == 0 {
		return PreviewResult{}, fmt.Errorf("no encoder produced usable preview output")
	}
	if targetFormat == candidate.FormatPNG {
		cand.Data = p.finishPNG(ctx, cand.Data)
	}

	return PreviewResult{
		Buffer:       cand.Data,
		Size:         int64(len(cand.Data)),
		QualityLabel: qualityLabel(cand.Quality),
		SSIM:         cand.MSSIM,
	}, nil
}

// runResponsive drives the Responsive Derivative Engine for f, per
// spec.md §4.8: build the width/DPR plan set, render one derivative per
// plan at the preset's fixed quality, then write the <picture> snippet and
// JSON manifest alongside them. Reuses the same FileJob phase sequence as
// the single-output path, just with the encoding and writing steps folded
// into the Engine's own Render call.
func (p *Pipeline) runResponsive(ctx context.Context, fj *job.FileJob, jobID int64, f scanner.File, decoded imageio.Decoded, nrgba *image.NRGBA, w, h int, cancelFlag *job.CancelFlag) *job.FileJob {
	fallback := p.resolveFormat(decoded.Format)
	dst, err := pathplan.Plan(pathplan.Input{
		Path:       f.Path,
		CommonRoot: p.CommonRoot,
		Width:      w,
		Height:     h,
		Format:     fallback,
		IsTIFF:     decoded.Format == imageio.FormatTIFF,
	}, p.Settings, nil)
	if err != nil {
		return p.fail(fj, jobID, ferr.EWrite, "planning responsive output path", err)
	}
	outDir := filepath.Dir(dst)
	slug := strings.TrimSuffix(filepath.Base(dst), filepath.Ext(dst))

	plans := responsive.BuildPlans(p.Settings.Responsive, w, h, decoded.Format)
	if len(plans) == 0 {
		_ = fj.Skip("no responsive derivative plans for this source")
		_ = p.Storage.FinalizeJobSkipped(jobID, "no responsive derivative plans for this source")
		return fj
	}

	if err := fj.Advance(job.PhaseEncoding); err != nil {
		return fj
	}
	if fj.ShouldAbandonResult(cancelFlag) {
		_ = fj.Cancel()
		_ = p.Storage.FinalizeJobSkipped(jobID, "cancelled before encoding")
		return fj
	}

	engine := responsive.NewEngine(p.Runners)
	derivs, renderErrs := engine.Render(ctx, nrgba, plans, p.Settings, outDir, slug)
	if len(derivs) == 0 {
		var cause error
		if len(renderErrs) > 0 {
			cause = renderErrs[0]
		}
		return p.fail(fj, jobID, ferr.EEncode, "rendering responsive derivatives", cause)
	}

	if err := fj.Advance(job.PhaseWriting); err != nil {
		return fj
	}

	sizesAttr := responsive.ResolveSizes(p.Settings.Responsive)
	if manifest, err := responsive.BuildManifest(f.Path, sizesAttr, derivs); err == nil {
		_, _ = atomicio.Write(filepath.Join(outDir, slug+".manifest.json"), manifest, atomicio.Options{})
	}
	if snippet, err := responsive.BuildPicture(derivs, sizesAttr); err == nil {
		_, _ = atomicio.Write(filepath.Join(outDir, slug+".picture.html"), []byte(snippet), atomicio.Options{})
	}

	var outputBytes int64
	for _, d := range derivs {
		outputBytes += int64(d.Size)
	}

	if err := fj.Advance(job.PhaseVerifying); err != nil {
		return fj
	}
	if err := fj.Advance(job.PhaseCleaning); err != nil {
		return fj
	}
	if hash, err := scanner.PartialHash(f.Path); err == nil {
		_ = p.Storage.MarkProcessed(f.Path, f.Size, f.Mtime, hash)
	}

	_ = fj.Succeed(job.Result{
		OutputPath:  outDir,
		InputBytes:  f.Size,
		OutputBytes: outputBytes,
		Strategy:    "responsive",
	})
	_ = p.Storage.FinalizeJobOK(jobID, outDir, 0, 0, "responsive", fmt.Sprintf("%d derivatives", len(derivs)))
	return fj
}
