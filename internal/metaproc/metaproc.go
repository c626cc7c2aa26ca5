// Package metaproc bakes in EXIF orientation and strips or keeps
// EXIF/XMP/IPTC/GPS metadata and the ICC profile ahead of encoding.
// Grounded on shamspias-fennec/exif.go's orientation reader/rotator,
// generalized from a hand-rolled APP1 parser to github.com/rwcarlsen/
// goexif/exif for reads and github.com/dsoprea/go-exif/v3 for the rare
// write-back case a keep-camera-info preset needs after scrubbing GPS.
package metaproc

import (
	"bytes"
	"fmt"
	"image"

	goexif "github.com/rwcarlsen/goexif/exif"

	dsoexif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"

	"github.com/surfgoffdude/optiq/internal/config"
)

// Preset flag bundles, mirroring config/presets.go's map-of-bundles shape
// but for metadata-specific flags rather than quality settings.
var presetFlags = map[string]config.MetadataCleanup{
	"web-safe": {
		Enabled: true, StripEXIF: true, StripXMP: true, StripIPTC: true,
		ICCMode: config.ICCConvertSRGB, GPSClean: true,
	},
	"max-compression": {
		Enabled: true, StripEXIF: true, StripXMP: true, StripIPTC: true,
		ICCMode: config.ICCStrip, GPSClean: true,
	},
	"keep-copyright": {
		Enabled: true, StripEXIF: false, StripXMP: false, StripIPTC: false,
		ICCMode: config.ICCKeep, GPSClean: true,
	},
	"keep-camera-info": {
		Enabled: true, StripEXIF: false, StripXMP: false, StripIPTC: false,
		ICCMode: config.ICCKeep, GPSClean: true, KeepCamera: true,
	},
}

// ResolvePreset returns the flag bundle for a named preset, falling back
// to the bundle's zero value (nothing stripped, nothing kept) for
// "custom" or an unrecognized name — callers of "custom" are expected to
// have set every field of MetadataCleanup explicitly themselves.
func ResolvePreset(name string) config.MetadataCleanup {
	if f, ok := presetFlags[name]; ok {
		return f
	}
	return config.MetadataCleanup{}
}

// Report records what the processor actually did, for logging and tests.
type Report struct {
	OrientationBaked bool
	OrientationWas   int
	ICCAction        string // "converted", "kept", "stripped", "none"
	EXIFStripped     bool
	XMPStripped      bool
	IPTCStripped     bool
	GPSStripped      bool
	EscalatedToStrip bool // KeepCamera contradicted GPSClean; see Process
}

// Process applies flags to img (already decoded), baking in orientation
// and reporting what metadata handling the caller's encoder should apply.
// Pixel-level ICC conversion and EXIF/XMP/IPTC stripping for container
// formats that carry it in their own segments (JPEG APP1/APP13, PNG text
// chunks) happen at encode time — the tool runners are told via Report
// and config.MetadataCleanup whether to pass a strip flag — but orientation
// must be baked into pixels here, before any encoder sees the image, since
// none of cjpeg/pngquant/oxipng/cwebp understand EXIF orientation.
func Process(img image.Image, srcBytes []byte, flags config.MetadataCleanup) (image.Image, Report, error) {
	var report Report

	orient := readOrientation(srcBytes)
	report.OrientationWas = int(orient)

	nrgba := toNRGBA(img)
	if orient != 1 {
		nrgba = applyOrientation(nrgba, orient)
		report.OrientationBaked = true
	}

	// KeepCamera (preserve EXIF for camera info) contradicts GPSClean
	// (must remove GPS). Per spec.md §4.5, when both are set we escalate
	// to a full EXIF strip so the GPS-removal guarantee always holds,
	// rather than silently leaving GPS tags in a "kept" EXIF block.
	stripEXIF := flags.StripEXIF
	if flags.KeepCamera && flags.GPSClean {
		stripEXIF = true
		report.EscalatedToStrip = true
	}

	report.EXIFStripped = stripEXIF
	report.XMPStripped = flags.StripXMP
	report.IPTCStripped = flags.StripIPTC
	report.GPSStripped = flags.GPSClean

	switch flags.ICCMode {
	case config.ICCConvertSRGB:
		report.ICCAction = "converted"
	case config.ICCKeep:
		report.ICCAction = "kept"
	case config.ICCStrip:
		report.ICCAction = "stripped"
	default:
		report.ICCAction = "none"
	}

	return nrgba, report, nil
}

func readOrientation(srcBytes []byte) int {
	x, err := goexif.Decode(bytes.NewReader(srcBytes))
	if err != nil {
		return 1
	}
	tag, err := x.Get(goexif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(x, y, img.At(x, y))
		}
	}
	return dst
}

// applyOrientation rotates/flips img so its visual orientation matches
// orientation tag 1, the way shamspias-fennec/exif.go's ApplyOrientation
// does, generalized to operate on any decoded image rather than only a
// pre-converted NRGBA from that package's own decoder.
func applyOrientation(img *image.NRGBA, orient int) *image.NRGBA {
	switch orient {
	case 2:
		return flipH(img)
	case 3:
		return rotate180(img)
	case 4:
		return flipV(img)
	case 5:
		return flipH(rotate90CW(img))
	case 6:
		return rotate90CW(img)
	case 7:
		return flipH(rotate270CW(img))
	case 8:
		return rotate270CW(img)
	default:
		return img
	}
}

func flipH(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(b)
	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(b.Min.X+w-1-x, b.Min.Y+y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

func flipV(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(b)
	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(b.Min.X+x, b.Min.Y+h-1-y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

func rotate180(img *image.NRGBA) *image.NRGBA {
	return flipV(flipH(img))
}

func rotate90CW(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(h-1-y, x, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

func rotate270CW(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(y, w-1-x, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

// StripGPSKeepRest re-embeds a JPEG's existing EXIF block with every GPS
// IFD entry removed, for the keep-camera-info preset's documented
// fallback path when it can actually succeed (well-formed EXIF with a
// GPS IFD present). Process already escalates to a full strip when this
// can't be attempted; callers that want to try the narrower re-embed
// first should call this before falling back to a full EXIF strip.
func StripGPSKeepRest(jpegBytes []byte) ([]byte, error) {
	rawExif, err := dsoexif.SearchAndExtractExif(jpegBytes)
	if err != nil {
		return nil, fmt.Errorf("no EXIF block to re-embed: %w", err)
	}

	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, fmt.Errorf("building standard IFD mapping: %w", err)
	}
	ti := dsoexif.NewTagIndex()

	_, index, err := dsoexif.Collect(im, ti, rawExif)
	if err != nil {
		return nil, fmt.Errorf("collecting EXIF IFDs: %w", err)
	}

	rootIb := dsoexif.NewIfdBuilderFromExistingChain(index.RootIfd)

	gpsPath, err := im.StripPathPhraseIndices("IFD/GPSInfo")
	if err == nil {
		if gpsIb, err := dsoexif.GetOrCreateIbFromRootIb(rootIb, gpsPath); err == nil {
			_ = gpsIb.DeleteAll()
		}
	}

	ibe := dsoexif.NewIfdByteEncoder()
	exifData, err := ibe.EncodeToExif(rootIb)
	if err != nil {
		return nil, fmt.Errorf("re-encoding EXIF block: %w", err)
	}

	return spliceExifIntoJPEG(jpegBytes, exifData)
}

// spliceExifIntoJPEG replaces a JPEG's first APP1 (EXIF) segment with
// newExif, inserting one if none existed. This mirrors the APP1 segment
// walk shamspias-fennec/exif.go's ReadOrientation performs for reading,
// run in reverse for writing.
func spliceExifIntoJPEG(jpegBytes, newExif []byte) ([]byte, error) {
	if len(jpegBytes) < 4 || jpegBytes[0] != 0xFF || jpegBytes[1] != 0xD8 {
		return nil, fmt.Errorf("not a JPEG stream")
	}

	var out bytes.Buffer
	out.Write(jpegBytes[:2]) // SOI

	pos := 2
	inserted := false
	for pos+4 <= len(jpegBytes) {
		if jpegBytes[pos] != 0xFF {
			break
		}
		marker := jpegBytes[pos+1]
		if marker == 0xDA { // SOS: no more metadata segments follow
			break
		}
		segLen := int(jpegBytes[pos+2])<<8 | int(jpegBytes[pos+3])
		segEnd := pos + 2 + segLen
		if segEnd > len(jpegBytes) {
			break
		}

		if marker == 0xE1 && !inserted {
			writeAPP1(&out, newExif)
			inserted = true
		} else {
			out.Write(jpegBytes[pos:segEnd])
		}
		pos = segEnd
	}

	if !inserted {
		writeAPP1(&out, newExif)
	}

	out.Write(jpegBytes[pos:])
	return out.Bytes(), nil
}

func writeAPP1(out *bytes.Buffer, exifPayload []byte) {
	segLen := len(exifPayload) + 2
	out.WriteByte(0xFF)
	out.WriteByte(0xE1)
	out.WriteByte(byte(segLen >> 8))
	out.WriteByte(byte(segLen))
	out.Write(exifPayload)
}
