package gan_trainer

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"gorgonia.org/tensor"
)

// ErrNoCheckpoint Returned when checkpoint directory has no checkpoints yet
var ErrNoCheckpoint = errors.New("no checkpoint found")

const checkpointIndexFile = "checkpoint"

// TensorRecord Serializable copy of float64 tensor
type TensorRecord struct {
	Shape []int
	Data  []float64
}

func recordOf(t *tensor.Dense) TensorRecord {
	data := t.Data().([]float64)
	return TensorRecord{
		Shape: append([]int(nil), t.Shape()...),
		Data:  append([]float64(nil), data...),
	}
}

func (rec TensorRecord) dense() *tensor.Dense {
	return tensor.New(tensor.WithShape(rec.Shape...), tensor.WithBacking(append([]float64(nil), rec.Data...)))
}

// denseFor Returns new tensor after checking record against shape of the reference tensor
func (rec TensorRecord) denseFor(reference *tensor.Dense) (*tensor.Dense, error) {
	if !tensor.Shape(rec.Shape).Eq(reference.Shape()) || len(rec.Data) != reference.Shape().TotalSize() {
		return nil, fmt.Errorf("Stored shape %v does not match %v", rec.Shape, reference.Shape())
	}
	return rec.dense(), nil
}

// copyInto Overwrites values of dst in place, so every graph bound to dst sees them
func (rec TensorRecord) copyInto(dst *tensor.Dense) error {
	if !tensor.Shape(rec.Shape).Eq(dst.Shape()) || len(rec.Data) != dst.Shape().TotalSize() {
		return fmt.Errorf("Stored shape %v does not match %v", rec.Shape, dst.Shape())
	}
	copy(dst.Data().([]float64), rec.Data)
	return nil
}

// checkpointData On-disk layout of a checkpoint
type checkpointData struct {
	RunID string
	Epoch int
	Steps int

	Generator              []TensorRecord
	Discriminator          []TensorRecord
	GeneratorOptimizer     AdamState
	DiscriminatorOptimizer AdamState
	Seed                   TensorRecord
}

// checkpointIndex Keeps track of saved checkpoints, the same way TensorFlow's 'checkpoint' file does
type checkpointIndex struct {
	Latest string   `yaml:"model_checkpoint_path"`
	All    []string `yaml:"all_model_checkpoint_paths"`
}

// CheckpointManager Saves and restores full training state under rolling prefix.
//
// Checkpoints are named <Prefix>-<N> with N increasing monotonically, previous checkpoints are not overwritten.
// If Keep > 0 then only Keep most recent checkpoints are retained.
//
type CheckpointManager struct {
	Dir    string
	Prefix string
	Keep   int
}

// NewCheckpointManager Constructor for CheckpointManager
func NewCheckpointManager(dir, prefix string, keep int) *CheckpointManager {
	if prefix == "" {
		prefix = "ckpt"
	}
	return &CheckpointManager{Dir: dir, Prefix: prefix, Keep: keep}
}

// Save Writes snapshot of both networks, both optimizers and visualization seed. Returns path to new checkpoint.
func (cm *CheckpointManager) Save(ts *TrainingState) (string, error) {
	if err := os.MkdirAll(cm.Dir, 0755); err != nil {
		return "", errors.Wrap(err, "Can't create checkpoint directory")
	}
	number, err := cm.nextNumber()
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%d", cm.Prefix, number)
	path := filepath.Join(cm.Dir, name)

	data := checkpointData{
		RunID:                  ts.RunID,
		Epoch:                  ts.Epoch,
		Steps:                  ts.Steps,
		Generator:              recordsOf(ts.Generator.TrainableParameters()),
		Discriminator:          recordsOf(ts.Discriminator.TrainableParameters()),
		GeneratorOptimizer:     ts.GeneratorOptimizer.State(),
		DiscriminatorOptimizer: ts.DiscriminatorOptimizer.State(),
		Seed:                   recordOf(ts.Seed),
	}
	if err := writeGob(path, &data); err != nil {
		return "", errors.Wrap(err, fmt.Sprintf("Can't write checkpoint '%s'", path))
	}

	idx, err := cm.readIndex()
	if err != nil && err != ErrNoCheckpoint {
		return "", err
	}
	idx.Latest = name
	idx.All = append(idx.All, name)
	if cm.Keep > 0 && len(idx.All) > cm.Keep {
		stale := idx.All[:len(idx.All)-cm.Keep]
		for _, old := range stale {
			if err := os.Remove(filepath.Join(cm.Dir, old)); err != nil && !os.IsNotExist(err) {
				return "", errors.Wrap(err, fmt.Sprintf("Can't remove stale checkpoint '%s'", old))
			}
		}
		idx.All = append([]string(nil), idx.All[len(idx.All)-cm.Keep:]...)
	}
	if err := cm.writeIndex(idx); err != nil {
		return "", err
	}
	return path, nil
}

// Latest Returns path to the most recent checkpoint or ErrNoCheckpoint
func (cm *CheckpointManager) Latest() (string, error) {
	idx, err := cm.readIndex()
	if err != nil {
		return "", err
	}
	if idx.Latest == "" {
		return "", ErrNoCheckpoint
	}
	return filepath.Join(cm.Dir, idx.Latest), nil
}

// Restore Loads checkpoint into existing state. Parameters are overwritten in place.
func (cm *CheckpointManager) Restore(path string, ts *TrainingState) error {
	var data checkpointData
	if err := readGob(path, &data); err != nil {
		return errors.Wrap(err, fmt.Sprintf("Can't read checkpoint '%s'", path))
	}
	genParams := ts.Generator.TrainableParameters()
	discParams := ts.Discriminator.TrainableParameters()
	if len(data.Generator) != len(genParams) {
		return fmt.Errorf("Checkpoint has %d generator parameters, but network has %d", len(data.Generator), len(genParams))
	}
	if len(data.Discriminator) != len(discParams) {
		return fmt.Errorf("Checkpoint has %d discriminator parameters, but network has %d", len(data.Discriminator), len(discParams))
	}
	// Validate everything before touching the state
	for i := range genParams {
		if _, err := data.Generator[i].denseFor(genParams[i]); err != nil {
			return errors.Wrap(err, fmt.Sprintf("Generator parameter #%d", i))
		}
	}
	for i := range discParams {
		if _, err := data.Discriminator[i].denseFor(discParams[i]); err != nil {
			return errors.Wrap(err, fmt.Sprintf("Discriminator parameter #%d", i))
		}
	}
	genFirst, genSecond, err := ts.GeneratorOptimizer.momentsOf(data.GeneratorOptimizer, genParams)
	if err != nil {
		return errors.Wrap(err, "Can't restore generator optimizer")
	}
	discFirst, discSecond, err := ts.DiscriminatorOptimizer.momentsOf(data.DiscriminatorOptimizer, discParams)
	if err != nil {
		return errors.Wrap(err, "Can't restore discriminator optimizer")
	}
	// Nothing below can fail: shapes are checked already
	ts.GeneratorOptimizer.commit(data.GeneratorOptimizer.Iteration, genFirst, genSecond)
	ts.DiscriminatorOptimizer.commit(data.DiscriminatorOptimizer.Iteration, discFirst, discSecond)
	for i := range genParams {
		if err := data.Generator[i].copyInto(genParams[i]); err != nil {
			return errors.Wrap(err, fmt.Sprintf("Generator parameter #%d", i))
		}
	}
	for i := range discParams {
		if err := data.Discriminator[i].copyInto(discParams[i]); err != nil {
			return errors.Wrap(err, fmt.Sprintf("Discriminator parameter #%d", i))
		}
	}
	if len(data.Seed.Shape) != 0 {
		ts.Seed = data.Seed.dense()
	}
	ts.RunID = data.RunID
	ts.Epoch = data.Epoch
	ts.Steps = data.Steps
	return nil
}

// RestoreLatest Restores the most recent checkpoint. Returns its path.
func (cm *CheckpointManager) RestoreLatest(ts *TrainingState) (string, error) {
	path, err := cm.Latest()
	if err != nil {
		return "", err
	}
	return path, cm.Restore(path, ts)
}

func (cm *CheckpointManager) nextNumber() (int, error) {
	matches, err := filepath.Glob(filepath.Join(cm.Dir, cm.Prefix+"-*"))
	if err != nil {
		return 0, errors.Wrap(err, "Can't list checkpoints")
	}
	max := 0
	for _, m := range matches {
		n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(m), cm.Prefix+"-"))
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	// Removed checkpoints still count: numbers are never reused
	idx, err := cm.readIndex()
	if err == nil {
		for _, name := range append(idx.All, idx.Latest) {
			n, err := strconv.Atoi(strings.TrimPrefix(name, cm.Prefix+"-"))
			if err == nil && n > max {
				max = n
			}
		}
	}
	return max + 1, nil
}

func (cm *CheckpointManager) readIndex() (checkpointIndex, error) {
	idx := checkpointIndex{}
	raw, err := os.ReadFile(filepath.Join(cm.Dir, checkpointIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return idx, ErrNoCheckpoint
		}
		return idx, errors.Wrap(err, "Can't read checkpoint index")
	}
	if err := yaml.Unmarshal(raw, &idx); err != nil {
		return idx, errors.Wrap(err, "Can't parse checkpoint index")
	}
	return idx, nil
}

func (cm *CheckpointManager) writeIndex(idx checkpointIndex) error {
	raw, err := yaml.Marshal(&idx)
	if err != nil {
		return errors.Wrap(err, "Can't encode checkpoint index")
	}
	if err := writeFileAtomic(filepath.Join(cm.Dir, checkpointIndexFile), raw); err != nil {
		return errors.Wrap(err, "Can't write checkpoint index")
	}
	return nil
}

func recordsOf(params []*tensor.Dense) []TensorRecord {
	records := make([]TensorRecord, len(params))
	for i := range params {
		records[i] = recordOf(params[i])
	}
	return records
}

func writeGob(path string, v interface{}) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func readGob(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(v)
}

// writeFileAtomic Writes data next to path and moves it in place. Temporary file never outlives a failure.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
