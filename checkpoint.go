package pix2pix_go

import (
	"encoding/gob"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

type checkpointEntry struct {
	Name   string
	Shape  []int
	Data   []float64
	Buffer bool
}

type checkpoint struct {
	Set     string
	Entries []checkpointEntry
}

// SaveCheckpoint Writes every parameter and buffer of set to file. File is replaced atomically.
func SaveCheckpoint(path string, params *ParamSet) error {
	ckpt := checkpoint{
		Set:     params.Name,
		Entries: make([]checkpointEntry, 0, params.Len()),
	}
	for _, p := range params.All() {
		ckpt.Entries = append(ckpt.Entries, checkpointEntry{
			Name:   p.Name(),
			Shape:  []int(p.Shape()),
			Data:   append([]float64(nil), p.Data()...),
			Buffer: p.IsBuffer(),
		})
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "Can't create directory for checkpoint '%s'", path)
	}
	tmp, err := ioutil.TempFile(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrap(err, "Can't create temporary checkpoint file")
	}
	if err = gob.NewEncoder(tmp).Encode(&ckpt); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "Can't encode checkpoint")
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "Can't flush checkpoint")
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "Can't move checkpoint to '%s'", path)
	}
	return nil
}

// LoadCheckpoint Reads parameters set from file. Returned set is sealed: network of different structure fails to bind to it.
func LoadCheckpoint(path string) (*ParamSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't open checkpoint '%s'", path)
	}
	defer f.Close()
	var ckpt checkpoint
	if err = gob.NewDecoder(f).Decode(&ckpt); err != nil {
		return nil, errors.Wrapf(err, "Can't decode checkpoint '%s'", path)
	}
	params := NewParamSet(ckpt.Set)
	for _, e := range ckpt.Entries {
		shape := tensor.Shape(e.Shape)
		if shape.TotalSize() != len(e.Data) {
			return nil, fmt.Errorf("Checkpoint entry '%s' has shape %v but %d values", e.Name, shape, len(e.Data))
		}
		value := tensor.New(tensor.WithShape(shape.Clone()...), tensor.WithBacking(append([]float64(nil), e.Data...)))
		if _, err = params.add(e.Name, value, e.Buffer); err != nil {
			return nil, errors.Wrapf(err, "Bad checkpoint '%s'", path)
		}
	}
	params.Seal()
	return params, nil
}
