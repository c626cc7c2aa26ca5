// Package responsive builds the width/DPR derivative sets that "responsive"
// mode produces: one resized, re-encoded file per planned size/format pair,
// plus the HTML snippets and JSON manifest a page needs to reference them.
// Grounded on converter/pdf.go's loop-over-inputs/build-per-item-temp-path/
// assemble-outputs shape, generalized from "thumbnail for a PDF page" to
// "derivative for a srcset", with golang.org/x/image/draw.Lanczos3 (via
// internal/resize) standing in for pdf.go's vips thumbnail shellout and
// internal/toolrunner standing in for its vips encode call.
package responsive

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"image"
	"strconv"
	"strings"

	"github.com/surfgoffdude/optiq/internal/atomicio"
	"github.com/surfgoffdude/optiq/internal/candidate"
	"github.com/surfgoffdude/optiq/internal/config"
	"github.com/surfgoffdude/optiq/internal/imageio"
	"github.com/surfgoffdude/optiq/internal/resize"
	"github.com/surfgoffdude/optiq/internal/toolrunner"
)

// Plan is one planned derivative before it has been rendered: a target size,
// the format it will be encoded in, and the filename suffix it takes.
type Plan struct {
	Width    int
	Height   int
	Format   candidate.Format
	Suffix   string // "-320w" or "@2x"
	Fallback bool   // true for the non-webp member of a webp-fallback pair
}

// Derivative is one rendered, written-to-disk output of a Plan.
type Derivative struct {
	Plan
	Path string
	Size int
}

// Engine renders Plans against a decoded source image using the same
// external encoder binaries the main pipeline uses, at the preset's fixed
// quality settings rather than a ladder/smart search — spec.md §4.8 calls
// for "encode at the preset's quality settings", not a per-derivative
// perceptual search.
type Engine struct {
	Runners map[string]toolrunner.Runner
}

// NewEngine constructs an Engine over the given tool runners, keyed by name
// ("cjpeg", "pngquant", "oxipng", "cwebp"), the same map internal/candidate
// consumes.
func NewEngine(runners map[string]toolrunner.Runner) *Engine {
	return &Engine{Runners: runners}
}

// BuildPlans expands a ResponsiveConfig into the concrete list of Plans for
// a source image of the given dimensions and container format, per
// spec.md §4.8's width/dpr modes and format policy.
func BuildPlans(cfg config.ResponsiveConfig, srcW, srcH int, srcFormat imageio.Format) []Plan {
	var widths []int
	base := cfg.DPRBaseWidth
	if base <= 0 {
		base = srcW
	}
	switch cfg.Mode {
	case config.ResponsiveModeDPR:
		for _, dpr := range []int{1, 2, 3} {
			widths = append(widths, base*dpr)
		}
	default:
		widths = append(widths, cfg.Widths...)
		if cfg.IncludeOriginal {
			widths = append(widths, srcW)
		}
	}

	formats := formatSet(cfg.FormatPolicy, srcFormat)

	var plans []Plan
	seen := map[int]bool{}
	for _, w := range widths {
		if seen[w] {
			continue
		}
		seen[w] = true

		resizePlan, ok := resize.FitWidth(srcW, srcH, w, cfg.AllowUpscale)
		if !ok {
			continue
		}

		for _, f := range formats {
			plans = append(plans, Plan{
				Width:    resizePlan.Width,
				Height:   resizePlan.Height,
				Format:   f.format,
				Suffix:   suffixFor(cfg.Mode, w, resizePlan.Width, base),
				Fallback: f.fallback,
			})
		}
	}
	return plans
}

type formatChoice struct {
	format   candidate.Format
	fallback bool
}

// formatSet resolves a ResponsiveFormatPolicy against the source's own
// container format, per spec.md §4.8: webp-only emits just webp;
// webp-fallback emits webp plus a source-derived fallback; keep emits only
// the source-derived format.
func formatSet(policy config.ResponsiveFormatPolicy, srcFormat imageio.Format) []formatChoice {
	derived := fallbackFormat(srcFormat)
	switch policy {
	case config.FormatPolicyWebPOnly:
		return []formatChoice{{format: candidate.FormatWebP}}
	case config.FormatPolicyWebPFallback:
		return []formatChoice{{format: candidate.FormatWebP}, {format: derived, fallback: true}}
	default:
		return []formatChoice{{format: derived, fallback: true}}
	}
}

// fallbackFormat picks the non-webp format a derivative set falls back to,
// mirroring the source's own container format where that makes sense and
// defaulting photographic webp/unknown sources to jpeg.
func fallbackFormat(srcFormat imageio.Format) candidate.Format {
	switch srcFormat {
	case imageio.FormatPNG:
		return candidate.FormatPNG
	default:
		return candidate.FormatJPEG
	}
}

// suffixFor names a derivative file per spec.md §4.8: "-{w}w" in width
// mode, "@{dpr}x" in dpr mode. The width suffix uses actualWidth, the
// plan's resized width (FitWidth keeps the requested width and rounds only
// the height); the dpr suffix is requestedWidth divided by dprBase.
func suffixFor(mode config.ResponsiveMode, requestedWidth, actualWidth, dprBase int) string {
	if mode == config.ResponsiveModeDPR && dprBase > 0 {
		dpr := requestedWidth / dprBase
		if dpr < 1 {
			dpr = 1
		}
		return fmt.Sprintf("@%dx", dpr)
	}
	return fmt.Sprintf("-%dw", actualWidth)
}

// Render resizes src to each Plan's dimensions, encodes it in that Plan's
// format at settings' fixed quality for that format, and atomically writes
// it to outDir/<slug><suffix>.<ext>. Returns one Derivative per Plan that
// rendered successfully; a Plan that fails to encode is dropped with its
// error logged by the caller, not fatal to the rest of the set.
func (e *Engine) Render(ctx context.Context, src image.Image, plans []Plan, settings config.EffectiveSettings, outDir, slug string) ([]Derivative, []error) {
	var out []Derivative
	var errs []error

	for _, p := range plans {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		resized, err := resize.ToLanczos(src, resize.Plan{Width: p.Width, Height: p.Height})
		if err != nil {
			errs = append(errs, fmt.Errorf("resizing %s%s: %w", slug, p.Suffix, err))
			continue
		}

		data, ext, err := e.encode(ctx, resized, p.Format, settings)
		if err != nil {
			errs = append(errs, fmt.Errorf("encoding %s%s: %w", slug, p.Suffix, err))
			continue
		}

		path := fmt.Sprintf("%s/%s%s%s", strings.TrimSuffix(outDir, "/"), slug, p.Suffix, ext)
		if _, err := atomicio.Write(path, data, atomicio.Options{}); err != nil {
			errs = append(errs, fmt.Errorf("writing %s: %w", path, err))
			continue
		}

		out = append(out, Derivative{Plan: p, Path: path, Size: len(data)})
	}

	return out, errs
}

// encode runs the runner for format at settings' fixed quality, returning
// the encoded bytes and the extension (with leading dot) the format takes.
func (e *Engine) encode(ctx context.Context, img *image.NRGBA, format candidate.Format, settings config.EffectiveSettings) ([]byte, string, error) {
	switch format {
	case candidate.FormatJPEG:
		runner, ok := e.Runners["cjpeg"]
		if !ok {
			return nil, "", fmt.Errorf("no cjpeg runner configured")
		}
		res, err := runner.Encode(ctx, imageio.EncodeAsPPM(img), toolrunner.EncodeOptions{Quality: settings.JPEGQuality})
		if err != nil {
			return nil, "", err
		}
		return res.Data, ".jpg", nil

	case candidate.FormatPNG:
		png, err := imageio.EncodeAsPNG(img)
		if err != nil {
			return nil, "", err
		}
		if settings.AggressivePNG {
			if runner, ok := e.Runners["oxipng"]; ok {
				res, err := runner.Encode(ctx, png, toolrunner.EncodeOptions{Lossless: true})
				if err == nil && !res.Skipped {
					return res.Data, ".png", nil
				}
			}
			return png, ".png", nil
		}
		if runner, ok := e.Runners["pngquant"]; ok {
			res, err := runner.Encode(ctx, png, toolrunner.EncodeOptions{Quality: settings.JPEGQuality})
			if err == nil && !res.Skipped {
				return res.Data, ".png", nil
			}
		}
		return png, ".png", nil

	case candidate.FormatWebP:
		runner, ok := e.Runners["cwebp"]
		if !ok {
			return nil, "", fmt.Errorf("no cwebp runner configured")
		}
		png, err := imageio.EncodeAsPNG(img)
		if err != nil {
			return nil, "", err
		}
		res, err := runner.Encode(ctx, png, toolrunner.EncodeOptions{
			Quality:      settings.WebPQuality,
			Effort:       settings.WebPEffort,
			NearLossless: settings.NearLossless,
		})
		if err != nil {
			return nil, "", err
		}
		return res.Data, ".webp", nil
	}

	return nil, "", fmt.Errorf("unsupported derivative format: %s", format)
}

// srcsetTemplate renders a flat <img srcset=… sizes=…> tag, per spec.md
// §4.8. Plain html/template, matching the teacher's stdlib-only texture for
// text generation elsewhere in the pack.
var srcsetTemplate = template.Must(template.New("srcset").Parse(
	`<img src="{{.FallbackSrc}}" srcset="{{.Srcset}}" sizes="{{.Sizes}}" alt="">`))

// pictureTemplate renders a <picture> with a webp <source> and a
// source-derived <img> fallback.
var pictureTemplate = template.Must(template.New("picture").Parse(
	`<picture>{{if .WebPSrcset}}<source type="image/webp" srcset="{{.WebPSrcset}}" sizes="{{.Sizes}}">{{end}}<img src="{{.FallbackSrc}}" srcset="{{.FallbackSrcset}}" sizes="{{.Sizes}}" alt=""></picture>`))

type snippetData struct {
	FallbackSrc    string
	Srcset         string
	FallbackSrcset string
	WebPSrcset     string
	Sizes          string
}

// BuildSrcset renders the flat <img srcset> snippet for derivs, using
// sizesAttr verbatim as the "sizes" attribute.
func BuildSrcset(derivs []Derivative, sizesAttr string) (string, error) {
	fallback := nonWebPSrcset(derivs)
	data := snippetData{
		FallbackSrc: firstPath(derivs, false),
		Srcset:      fallback,
		Sizes:       sizesAttr,
	}
	var buf strings.Builder
	if err := srcsetTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering srcset snippet: %w", err)
	}
	return buf.String(), nil
}

// BuildPicture renders the <picture> snippet for derivs: a webp <source>
// (if any webp derivatives exist) plus a fallback <img>.
func BuildPicture(derivs []Derivative, sizesAttr string) (string, error) {
	data := snippetData{
		FallbackSrc:    firstPath(derivs, false),
		FallbackSrcset: nonWebPSrcset(derivs),
		WebPSrcset:     webpSrcset(derivs),
		Sizes:          sizesAttr,
	}
	var buf strings.Builder
	if err := pictureTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering picture snippet: %w", err)
	}
	return buf.String(), nil
}

func webpSrcset(derivs []Derivative) string {
	var parts []string
	for _, d := range derivs {
		if d.Format == candidate.FormatWebP {
			parts = append(parts, d.Path+" "+widthToken(d))
		}
	}
	return strings.Join(parts, ", ")
}

func nonWebPSrcset(derivs []Derivative) string {
	var parts []string
	for _, d := range derivs {
		if d.Format != candidate.FormatWebP {
			parts = append(parts, d.Path+" "+widthToken(d))
		}
	}
	return strings.Join(parts, ", ")
}

// widthToken renders the "Nw" descriptor a srcset candidate needs; DPR-mode
// derivatives (suffix "@Nx") have no natural width descriptor, so their
// pixel width is used instead, which is equally valid per the srcset spec.
func widthToken(d Derivative) string {
	return strconv.Itoa(d.Width) + "w"
}

func firstPath(derivs []Derivative, webp bool) string {
	for _, d := range derivs {
		if (d.Format == candidate.FormatWebP) == webp {
			return d.Path
		}
	}
	if len(derivs) > 0 {
		return derivs[0].Path
	}
	return ""
}

// Manifest is the JSON document spec.md §4.8 requires: every derivative
// produced for one source, with enough detail for a build tool to consume
// without re-deriving filenames itself.
type Manifest struct {
	Source      string              `json:"source"`
	Sizes       string              `json:"sizes"`
	Derivatives []ManifestDerivative `json:"derivatives"`
}

// ManifestDerivative is one Manifest entry.
type ManifestDerivative struct {
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
	Bytes  int    `json:"bytes"`
}

// BuildManifest serializes derivs for srcPath as pretty-printed JSON.
func BuildManifest(srcPath, sizesAttr string, derivs []Derivative) ([]byte, error) {
	m := Manifest{Source: srcPath, Sizes: sizesAttr}
	for _, d := range derivs {
		m.Derivatives = append(m.Derivatives, ManifestDerivative{
			Path:   d.Path,
			Width:  d.Width,
			Height: d.Height,
			Format: string(d.Format),
			Bytes:  d.Size,
		})
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling derivative manifest: %w", err)
	}
	return data, nil
}

// ResolveSizes returns the "sizes" attribute string for a ResponsiveConfig,
// preferring an explicit CustomSizes override, falling back to a sensible
// default built from SizesTemplate, and finally "100vw" when nothing was
// configured.
func ResolveSizes(cfg config.ResponsiveConfig) string {
	if cfg.CustomSizes != "" {
		return cfg.CustomSizes
	}
	switch cfg.SizesTemplate {
	case "full-width":
		return "100vw"
	case "half-width":
		return "(min-width: 768px) 50vw, 100vw"
	case "thumbnail":
		return "(min-width: 768px) 25vw, 50vw"
	case "":
		return "100vw"
	default:
		return cfg.SizesTemplate
	}
}
