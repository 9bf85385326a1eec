package gan_trainer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

const (
	manifestFile   = "model.json"
	manifestFormat = "gan-trainer-go/generator"
)

// modelManifest Architecture of exported generator. Parameters are stored next to it as NumPy files.
type modelManifest struct {
	Format   string          `json:"format"`
	NoiseDim int             `json:"noise_dim"`
	Network  *Network        `json:"network"`
	Params   []manifestParam `json:"params"`
}

type manifestParam struct {
	Layer int    `json:"layer"`
	Kind  string `json:"kind"`
	File  string `json:"file"`
	Shape []int  `json:"shape"`
}

// ExportGenerator Writes standalone generator (architecture + parameters) into directory, overwriting previous export.
// Result could be loaded by LoadGenerator without any training state.
func ExportGenerator(gen *GeneratorNet, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "Can't create export directory")
	}
	manifest := modelManifest{
		Format:   manifestFormat,
		NoiseDim: gen.NoiseDim,
		Network:  gen.private,
	}
	for i, l := range gen.private.Layers {
		if l.Weights != nil {
			p, err := writeParam(dir, i, "weights", l.Weights)
			if err != nil {
				return err
			}
			manifest.Params = append(manifest.Params, p)
		}
		if l.Bias != nil {
			p, err := writeParam(dir, i, "bias", l.Bias)
			if err != nil {
				return err
			}
			manifest.Params = append(manifest.Params, p)
		}
	}
	raw, err := json.MarshalIndent(&manifest, "", "  ")
	if err != nil {
		return errors.Wrap(err, "Can't encode model manifest")
	}
	// Manifest goes last: it is what makes the export loadable
	if err := writeFileAtomic(filepath.Join(dir, manifestFile), raw); err != nil {
		return errors.Wrap(err, "Can't write model manifest")
	}
	return nil
}

func writeParam(dir string, layer int, kind string, t *tensor.Dense) (manifestParam, error) {
	p := manifestParam{
		Layer: layer,
		Kind:  kind,
		File:  fmt.Sprintf("layer_%d_%s.npy", layer, kind),
		Shape: append([]int(nil), t.Shape()...),
	}
	buf := bytes.Buffer{}
	if err := t.WriteNpy(&buf); err != nil {
		return p, errors.Wrap(err, fmt.Sprintf("Can't encode %s of layer #%d", kind, layer))
	}
	if err := writeFileAtomic(filepath.Join(dir, p.File), buf.Bytes()); err != nil {
		return p, errors.Wrap(err, fmt.Sprintf("Can't write %s of layer #%d", kind, layer))
	}
	return p, nil
}

// LoadGenerator Reads generator exported by ExportGenerator
func LoadGenerator(dir string) (*GeneratorNet, error) {
	raw, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, errors.Wrap(err, "Can't read model manifest")
	}
	manifest := modelManifest{}
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, errors.Wrap(err, "Can't parse model manifest")
	}
	if manifest.Format != manifestFormat {
		return nil, fmt.Errorf("Unknown model format '%s'", manifest.Format)
	}
	if manifest.Network == nil || len(manifest.Network.Layers) == 0 {
		return nil, fmt.Errorf("Model manifest has no layers")
	}
	net := manifest.Network
	for _, p := range manifest.Params {
		if p.Layer < 0 || p.Layer >= len(net.Layers) || net.Layers[p.Layer] == nil {
			return nil, fmt.Errorf("Parameter file '%s' refers to unknown layer #%d", p.File, p.Layer)
		}
		t, err := readParam(filepath.Join(dir, p.File))
		if err != nil {
			return nil, err
		}
		if !t.Shape().Eq(tensor.Shape(p.Shape)) {
			return nil, fmt.Errorf("Parameter file '%s' has shape %v, but manifest says %v", p.File, t.Shape(), p.Shape)
		}
		switch p.Kind {
		case "weights":
			net.Layers[p.Layer].Weights = t
		case "bias":
			net.Layers[p.Layer].Bias = t
		default:
			return nil, fmt.Errorf("Parameter kind '%s' is not handled", p.Kind)
		}
	}
	if err := net.validate(); err != nil {
		return nil, errors.Wrap(err, "Loaded model is not valid")
	}
	return &GeneratorNet{private: net, NoiseDim: manifest.NoiseDim}, nil
}

func readParam(path string) (*tensor.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't open '%s'", path))
	}
	defer f.Close()
	t := new(tensor.Dense)
	if err := t.ReadNpy(f); err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Can't read '%s'", path))
	}
	return t, nil
}
