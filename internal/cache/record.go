package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	"github.com/lttng/lttng-ivc/internal/project"
)

// recordVersion is bumped whenever the record layout changes.
const recordVersion = 1

// record is the persisted form of a built project, stored next to its
// source, install and log trees:
//
//	<root>/<label>/
//	  <label>.cbor
//	  source/
//	  install/
//	  log/
type record struct {
	Version int              `cbor:"version"`
	Project project.Snapshot `cbor:"project"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Core deterministic encoding: the same snapshot always yields the same
	// bytes.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cache: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("cache: CBOR decoder initialization failed: " + err.Error())
	}
}

func (s *Service) recordPath(label string) string {
	return filepath.Join(s.root, label, label+".cbor")
}

// loadRecord reads the record of label. A missing record is reported with
// fs.ErrNotExist.
func (s *Service) loadRecord(label string) (*record, error) {
	data, err := os.ReadFile(s.recordPath(label))
	if err != nil {
		return nil, err
	}
	var r record
	if err := decMode.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.recordPath(label), err)
	}
	if r.Version != recordVersion {
		return nil, fmt.Errorf("record version %d, want %d", r.Version, recordVersion)
	}
	return &r, nil
}

// saveRecord writes the record of p through a temporary file so a reader
// never sees a partial record.
func (s *Service) saveRecord(p *project.Project) error {
	data, err := encMode.Marshal(record{Version: recordVersion, Project: p.Snapshot()})
	if err != nil {
		return err
	}
	path := s.recordPath(p.Label)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+p.Label+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Join(err, os.Remove(tmp.Name()))
	}
	return nil
}
