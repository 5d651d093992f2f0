// Package thumbnail renders DICOM instances as small PNG previews.
package thumbnail

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"strconv"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"golang.org/x/image/draw"
)

// Default window for datasets that carry no windowing of their own.
// Soft-tissue CT values, a reasonable middle ground across modalities.
const (
	defaultWindowCenter = 40.0
	defaultWindowWidth  = 400.0
)

// Renderer converts DICOM files to square PNG thumbnails. The pixel
// data is rescaled and windowed, padded to a square on white and scaled
// to the target size.
type Renderer struct {
	Size int
}

// New returns a renderer producing size x size thumbnails.
func New(size int) *Renderer {
	if size <= 0 {
		size = 100
	}
	return &Renderer{Size: size}
}

// Render reads dcmPath and writes the thumbnail to pngPath.
func (r *Renderer) Render(dcmPath, pngPath string) error {
	ds, err := dicom.ParseFile(dcmPath, nil)
	if err != nil {
		return fmt.Errorf("thumbnail: parsing %s: %w", dcmPath, err)
	}

	img, err := frameImage(&ds)
	if err != nil {
		return err
	}

	thumb := scaleToSquare(padSquare(img), r.Size)

	out, err := os.Create(pngPath)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := png.Encode(out, thumb); err != nil {
		return err
	}
	return out.Sync()
}

// frameImage extracts the first frame as a grayscale image, applying the
// dataset's rescale and window when the frame is native.
func frameImage(ds *dicom.Dataset) (image.Image, error) {
	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("thumbnail: no pixel data: %w", err)
	}
	info := dicom.MustGetPixelDataInfo(el.Value)
	if len(info.Frames) == 0 {
		return nil, fmt.Errorf("thumbnail: pixel data has no frames")
	}
	fr := info.Frames[0]

	if fr.Encapsulated {
		img, err := fr.GetImage()
		if err != nil {
			return nil, fmt.Errorf("thumbnail: decoding frame: %w", err)
		}
		return img, nil
	}

	native := fr.NativeData
	slope := floatTagValue(ds, tag.RescaleSlope, 1)
	intercept := floatTagValue(ds, tag.RescaleIntercept, 0)
	center := floatTagValue(ds, tag.WindowCenter, defaultWindowCenter)
	width := floatTagValue(ds, tag.WindowWidth, defaultWindowWidth)

	img := image.NewGray(image.Rect(0, 0, native.Cols, native.Rows))
	for i, pixel := range native.Data {
		value := float64(pixel[0])*slope + intercept
		img.SetGray(i%native.Cols, i/native.Cols, color.Gray{Y: windowLevel(value, center, width)})
	}
	return img, nil
}

// windowLevel maps a rescaled pixel value onto 0..255 through a linear
// window.
func windowLevel(value, center, width float64) uint8 {
	if width <= 0 {
		width = 1
	}
	low := center - width/2
	high := center + width/2
	switch {
	case value <= low:
		return 0
	case value >= high:
		return 255
	default:
		return uint8((value - low) / width * 255)
	}
}

// padSquare centers img on a white square sized to its longer edge.
func padSquare(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == h {
		return img
	}
	side := w
	if h > side {
		side = h
	}
	out := image.NewGray(image.Rect(0, 0, side, side))
	draw.Draw(out, out.Bounds(), image.White, image.Point{}, draw.Src)
	offset := image.Pt((side-w)/2, (side-h)/2)
	draw.Draw(out, image.Rectangle{Min: offset, Max: offset.Add(image.Pt(w, h))}, img, b.Min, draw.Src)
	return out
}

// scaleToSquare resamples img to size x size.
func scaleToSquare(img image.Image, size int) image.Image {
	out := image.NewGray(image.Rect(0, 0, size, size))
	draw.ApproxBiLinear.Scale(out, out.Bounds(), img, img.Bounds(), draw.Src, nil)
	return out
}

// floatTagValue reads a numeric attribute stored as a decimal string,
// falling back to def when absent or malformed.
func floatTagValue(ds *dicom.Dataset, t tag.Tag, def float64) float64 {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return def
	}
	values, ok := el.Value.GetValue().([]string)
	if !ok || len(values) == 0 {
		return def
	}
	f, err := strconv.ParseFloat(values[0], 64)
	if err != nil {
		return def
	}
	return f
}
