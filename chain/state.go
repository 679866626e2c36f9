// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"bytes"
	"io/ioutil"
	"os"

	"github.com/pkg/errors"

	"github.com/MochiMore/mochimo/wire"
)

// stateFileSize is the exact byte length of the persisted chain state.
const stateFileSize = 8 + 32 + 32 + 8 + 4 + 4 + 1

// State is the chain state: the tip the engine validates against. It is
// persisted as one fixed-size record and rewritten atomically after every
// accepted block. The cumulative weight is not persisted; it is
// recomputed from the trailer file on startup and resync.
type State struct {
	// Cblocknum is the current (tip) block number.
	Cblocknum uint64

	// Cblockhash is the hash of the tip block.
	Cblockhash wire.Hash

	// Prevhash is the hash of the block before the tip.
	Prevhash wire.Hash

	// Mfee is the current minimum transaction fee.
	Mfee uint64

	// Difficulty is the difficulty the next block must be solved at.
	Difficulty uint32

	// Time0 is the solve time of the tip block.
	Time0 uint32

	// Bgflag suppresses interactive output in spawned validators.
	Bgflag byte

	// Weight is the cumulative chain weight, little-endian.
	Weight Weight
}

// Deserialize decodes the persisted chain state from r.
func (s *State) Deserialize(r *bytes.Reader) error {
	return readStateElements(r, s)
}

func readStateElements(r *bytes.Reader, s *State) error {
	for _, el := range []interface{}{
		&s.Cblocknum, &s.Cblockhash, &s.Prevhash,
		&s.Mfee, &s.Difficulty, &s.Time0, &s.Bgflag,
	} {
		if err := wire.ReadElement(r, el); err != nil {
			return err
		}
	}
	return nil
}

// ReadState loads the chain state record from path.
func ReadState(path string) (*State, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read chain state %s", path)
	}
	if len(data) != stateFileSize {
		return nil, errors.Errorf("bad chain state size %d in %s, want %d",
			len(data), path, stateFileSize)
	}
	s := new(State)
	if err := s.Deserialize(bytes.NewReader(data)); err != nil {
		return nil, errors.Wrapf(err, "failed to decode chain state %s", path)
	}
	return s, nil
}

// WriteState persists the chain state record to path via a temp file and
// rename.
func WriteState(path string, s *State) error {
	var buf bytes.Buffer
	for _, el := range []interface{}{
		s.Cblocknum, &s.Cblockhash, &s.Prevhash,
		s.Mfee, s.Difficulty, s.Time0, s.Bgflag,
	} {
		if err := wire.WriteElement(&buf, el); err != nil {
			return errors.Wrap(err, "failed to encode chain state")
		}
	}
	tmpPath := path + ".tmp"
	if err := ioutil.WriteFile(tmpPath, buf.Bytes(), 0644); err != nil {
		return errors.Wrapf(err, "failed to write chain state %s", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to move chain state to %s", path)
	}
	return nil
}
