package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// SnapshotVersion is the current persisted model format.
const SnapshotVersion = 1

// Snapshot is the persisted form of a classifier.
type Snapshot struct {
	Version      int            `json:"version" msgpack:"version"`
	Languages    []string       `json:"languages" msgpack:"languages"`
	Config       Config         `json:"hyperparameters" msgpack:"hyperparameters"`
	FeatureNames []string       `json:"feature_names" msgpack:"feature_names"`
	Trained      bool           `json:"trained" msgpack:"trained"`
	Units        []UnitSnapshot `json:"units,omitempty" msgpack:"units,omitempty"`
	History      []Checkpoint   `json:"training_history,omitempty" msgpack:"training_history,omitempty"`
}

// UnitSnapshot is the persisted form of one language unit.
type UnitSnapshot struct {
	Language string    `json:"language" msgpack:"language"`
	Weights  []float64 `json:"weights" msgpack:"weights"`
	Bias     float64   `json:"bias" msgpack:"bias"`
}

// Snapshot captures the classifier state.
func (c *Classifier) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Snapshot{
		Version:      SnapshotVersion,
		Languages:    slices.Clone(c.languages),
		Config:       c.cfg,
		FeatureNames: c.extractor.FeatureNames(),
		Trained:      c.trained,
		History:      slices.Clone(c.history),
	}
	for k, u := range c.units {
		s.Units = append(s.Units, UnitSnapshot{
			Language: c.languages[k],
			Weights:  slices.Clone(u.Weights),
			Bias:     u.Bias,
		})
	}
	return s
}

// FromSnapshot rebuilds a classifier. A nil extractor selects NewExtractor().
// The snapshot's feature order must match the extractor exactly.
func FromSnapshot(s Snapshot, extractor *Extractor) (*Classifier, error) {
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported model version %d", s.Version)
	}
	c, err := New(s.Languages, s.Config, extractor)
	if err != nil {
		return nil, err
	}
	if !slices.Equal(s.FeatureNames, c.extractor.FeatureNames()) {
		return nil, fmt.Errorf("%w: feature names differ (%d persisted, %d expected)",
			ErrModelMismatch, len(s.FeatureNames), c.extractor.Dim())
	}
	c.history = slices.Clone(s.History)
	if len(s.Units) == 0 {
		if s.Trained {
			return nil, fmt.Errorf("%w: trained model has no units", ErrModelMismatch)
		}
		return c, nil
	}
	if len(s.Units) != len(s.Languages) {
		return nil, fmt.Errorf("%w: %d units for %d languages", ErrModelMismatch, len(s.Units), len(s.Languages))
	}
	c.units = make([]*Unit, len(s.Units))
	for k, us := range s.Units {
		if us.Language != s.Languages[k] {
			return nil, fmt.Errorf("%w: unit %d is %q, want %q", ErrModelMismatch, k, us.Language, s.Languages[k])
		}
		if len(us.Weights) != c.extractor.Dim() {
			return nil, fmt.Errorf("%w: unit %q has %d weights, want %d",
				ErrModelMismatch, us.Language, len(us.Weights), c.extractor.Dim())
		}
		c.units[k] = &Unit{Weights: slices.Clone(us.Weights), Bias: us.Bias}
	}
	c.trained = s.Trained
	return c, nil
}

// MarshalModel serializes the classifier to JSON bytes.
func MarshalModel(c *Classifier) ([]byte, error) {
	return json.Marshal(c.Snapshot())
}

// UnmarshalModel deserializes a classifier from JSON bytes.
func UnmarshalModel(data []byte) (*Classifier, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return FromSnapshot(s, nil)
}

// MarshalModelMsgpack serializes the classifier to msgpack bytes.
func MarshalModelMsgpack(c *Classifier) ([]byte, error) {
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(c.Snapshot()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalModelMsgpack deserializes a classifier from msgpack bytes.
func UnmarshalModelMsgpack(data []byte) (*Classifier, error) {
	var s Snapshot
	if err := msgpack.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return nil, err
	}
	return FromSnapshot(s, nil)
}

func isMsgpackPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msgpack", ".mpk":
		return true
	}
	return false
}

// SaveModel writes the classifier to path; ".msgpack" and ".mpk" select msgpack, anything else JSON.
func SaveModel(c *Classifier, path string) error {
	var (
		data []byte
		err  error
	)
	if isMsgpackPath(path) {
		data, err = MarshalModelMsgpack(c)
	} else {
		data, err = json.MarshalIndent(c.Snapshot(), "", "  ")
	}
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes data to a temporary file next to path and renames it
// over path, so readers see either the old or the new model.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	_, err = f.Write(data)
	if serr := f.Sync(); err == nil {
		err = serr
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp, 0644)
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		_ = os.Remove(tmp)
	}
	return err
}

// LoadModel reads a classifier written by SaveModel.
func LoadModel(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isMsgpackPath(path) {
		return UnmarshalModelMsgpack(data)
	}
	return UnmarshalModel(data)
}
