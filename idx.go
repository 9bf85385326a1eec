package gan_trainer

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

const idxImagesMagic = 0x00000803

// LoadIDXImages Reads images stored in IDX3 format (MNIST-like, optionally gzipped) into tensor [N, rows, cols, 1].
// Pixel values are scaled from [0, 255] to [-1, 1] so they match tanh output of generator.
func LoadIDXImages(path string) (*tensor.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't open '%s'", path))
	}
	defer f.Close()
	br := bufio.NewReader(f)
	var r io.Reader = br
	head, err := br.Peek(2)
	if err != nil {
		return nil, errors.Wrap(err, "Can't read IDX header")
	}
	// gzip magic
	if head[0] == 0x1f && head[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "Can't open gzip stream")
		}
		defer gz.Close()
		r = gz
	}
	return readIDXImages(r)
}

func readIDXImages(r io.Reader) (*tensor.Dense, error) {
	var header [4]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, errors.Wrap(err, "Can't read IDX header")
	}
	if header[0] != idxImagesMagic {
		return nil, fmt.Errorf("Bad IDX magic %#08x, expected %#08x", header[0], idxImagesMagic)
	}
	n, rows, cols := int(header[1]), int(header[2]), int(header[3])
	if n == 0 || rows == 0 || cols == 0 {
		return nil, fmt.Errorf("IDX file has empty dimension: %dx%dx%d", n, rows, cols)
	}
	pixels := make([]byte, n*rows*cols)
	if _, err := io.ReadFull(r, pixels); err != nil {
		return nil, errors.Wrap(err, "Can't read IDX pixels")
	}
	backing := make([]float64, len(pixels))
	for i, px := range pixels {
		backing[i] = (float64(px) - 127.5) / 127.5
	}
	return tensor.New(tensor.WithShape(n, rows, cols, 1), tensor.WithBacking(backing)), nil
}
