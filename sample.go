package gan_trainer

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"gorgonia.org/tensor"
)

// SampleSink Receives generator output for the fixed visualization seed
type SampleSink interface {
	Save(gen *GeneratorNet, label string, seed *tensor.Dense) error
}

// ImageGridSink Renders samples as a grid of images into <Dir>/image_at_epoch_<label>.png
//
// TileSize - size of single tile. Default is 1 inch
//
type ImageGridSink struct {
	Dir      string
	TileSize vg.Length
}

// NewImageGridSink Constructor for ImageGridSink
func NewImageGridSink(dir string) *ImageGridSink {
	return &ImageGridSink{Dir: dir, TileSize: vg.Inch}
}

// Path Returns file name for provided label
func (sink *ImageGridSink) Path(label string) string {
	return filepath.Join(sink.Dir, fmt.Sprintf("image_at_epoch_%s.png", label))
}

// Save Evaluates generator in inference mode and writes grid of produced samples
func (sink *ImageGridSink) Save(gen *GeneratorNet, label string, seed *tensor.Dense) error {
	samples, err := gen.Forward(seed, false)
	if err != nil {
		return errors.Wrap(err, "Can't generate samples")
	}
	images, err := samplesToImages(samples)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(sink.Dir, 0755); err != nil {
		return errors.Wrap(err, "Can't create samples directory")
	}
	return writeImageGrid(images, sink.tileSize(), sink.Path(label))
}

func (sink *ImageGridSink) tileSize() vg.Length {
	if sink.TileSize <= 0 {
		return vg.Inch
	}
	return sink.TileSize
}

// gridSize Returns rows and columns of the smallest square-ish grid holding n tiles
func gridSize(n int) (int, int) {
	if n <= 0 {
		return 0, 0
	}
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := (n + cols - 1) / cols
	return rows, cols
}

// samplesToImages Converts samples [N, H, W, C] with values in [-1, 1] to images. C must be 1 (grayscale) or 3 (RGB).
func samplesToImages(samples *tensor.Dense) ([]image.Image, error) {
	shape := samples.Shape()
	if len(shape) != 4 {
		return nil, fmt.Errorf("Samples must have shape [N, H, W, C], but got %v", shape)
	}
	n, h, w, c := shape[0], shape[1], shape[2], shape[3]
	if c != 1 && c != 3 {
		return nil, fmt.Errorf("Only 1 or 3 channels could be rendered, but got %d", c)
	}
	data, ok := samples.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("Samples must be float64")
	}
	images := make([]image.Image, n)
	size := h * w * c
	for i := 0; i < n; i++ {
		pixels := data[i*size : (i+1)*size]
		if c == 1 {
			img := image.NewGray(image.Rect(0, 0, w, h))
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					img.SetGray(x, y, color.Gray{Y: toByte(pixels[y*w+x])})
				}
			}
			images[i] = img
			continue
		}
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				off := (y*w + x) * 3
				img.SetRGBA(x, y, color.RGBA{R: toByte(pixels[off]), G: toByte(pixels[off+1]), B: toByte(pixels[off+2]), A: 255})
			}
		}
		images[i] = img
	}
	return images, nil
}

// toByte Maps [-1, 1] to [0, 255]
func toByte(v float64) uint8 {
	if math.IsNaN(v) {
		return 0
	}
	scaled := (v + 1) * 127.5
	if scaled <= 0 {
		return 0
	}
	if scaled >= 255 {
		return 255
	}
	return uint8(math.Round(scaled))
}

func writeImageGrid(images []image.Image, tile vg.Length, fname string) error {
	rows, cols := gridSize(len(images))
	if rows == 0 {
		return fmt.Errorf("Nothing to render")
	}
	plots := make([][]*plot.Plot, rows)
	for r := 0; r < rows; r++ {
		plots[r] = make([]*plot.Plot, cols)
		for c := 0; c < cols; c++ {
			p := plot.New()
			p.HideAxes()
			if idx := r*cols + c; idx < len(images) {
				bounds := images[idx].Bounds()
				p.Add(plotter.NewImage(images[idx], 0, 0, float64(bounds.Dx()), float64(bounds.Dy())))
			}
			plots[r][c] = p
		}
	}
	img := vgimg.New(vg.Length(cols)*tile, vg.Length(rows)*tile)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: rows,
		Cols: cols,
		PadX: vg.Millimeter,
		PadY: vg.Millimeter,
	}
	canvases := plot.Align(plots, tiles, dc)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			plots[r][c].Draw(canvases[r][c])
		}
	}
	buf := bytes.Buffer{}
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(&buf); err != nil {
		return errors.Wrap(err, fmt.Sprintf("Can't encode '%s'", fname))
	}
	if err := writeFileAtomic(fname, buf.Bytes()); err != nil {
		return errors.Wrap(err, fmt.Sprintf("Can't write '%s'", fname))
	}
	return nil
}
