package dicomimage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // encapsulated frames decode through image.Decode
	"image/png"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// ErrNoImageData means the container holds no decodable pixel data.
// Callers render metadata-only; this is never fatal to a retrieval.
var ErrNoImageData = errors.New("no image data")

// NormalizePixels converts a 2-D pixel grid of arbitrary dynamic range
// (12/16-bit samples are common) into an 8-bit grayscale raster of the
// same dimensions using a linear min-max rescale:
//
//	out = (in - min) / (max - min) * 255
//
// A flat grid (max == min) yields a uniform all-zero raster; the divide
// is never executed in that case. An empty grid returns ErrNoImageData.
func NormalizePixels(grid [][]int) (*image.Gray, error) {
	rows := len(grid)
	if rows == 0 || len(grid[0]) == 0 {
		return nil, ErrNoImageData
	}
	cols := len(grid[0])

	min, max := grid[0][0], grid[0][0]
	for _, row := range grid {
		for _, v := range row {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
	}

	out := image.NewGray(image.Rect(0, 0, cols, rows))
	if max == min {
		// NewGray zeroes the raster already.
		return out, nil
	}

	span := max - min
	for y, row := range grid {
		for x, v := range row {
			if x >= cols {
				break
			}
			out.SetGray(x, y, color.Gray{Y: uint8((v - min) * 255 / span)})
		}
	}
	return out, nil
}

// grayGrid samples an image into a 2-D grid of 16-bit luminance values.
// Native DICOM frames come back as Gray16 with raw sample values, so the
// grid preserves the source dynamic range for normalization.
func grayGrid(img image.Image) [][]int {
	b := img.Bounds()
	grid := make([][]int, b.Dy())
	for y := 0; y < b.Dy(); y++ {
		row := make([]int, b.Dx())
		for x := 0; x < b.Dx(); x++ {
			r, _, _, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			row[x] = int(r)
		}
		grid[y] = row
	}
	return grid
}

// RenderPreview decodes the first frame of the dataset's pixel data,
// normalizes it to 8-bit grayscale, and returns the encoded PNG bytes.
// Datasets with no decodable pixel content return ErrNoImageData
// (possibly wrapped).
func RenderPreview(ds *dicom.Dataset) ([]byte, error) {
	if ds == nil {
		return nil, ErrNoImageData
	}
	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil || el == nil || el.Value == nil || el.Value.ValueType() != dicom.PixelData {
		return nil, ErrNoImageData
	}

	info := dicom.MustGetPixelDataInfo(el.Value)
	if len(info.Frames) == 0 {
		return nil, ErrNoImageData
	}

	img, err := info.Frames[0].GetImage()
	if err != nil {
		return nil, fmt.Errorf("decode frame: %v: %w", err, ErrNoImageData)
	}

	norm, err := NormalizePixels(grayGrid(img))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, norm); err != nil {
		return nil, fmt.Errorf("encode preview PNG: %w", err)
	}
	return buf.Bytes(), nil
}
