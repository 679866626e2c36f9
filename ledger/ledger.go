// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package ledger implements the disk-backed account ledger: a sorted,
// binary-searchable array of address/balance entries, the merge-based
// updater that applies block deltas to it, and the supporting extract,
// renewal and sort routines.
//
// The ledger file is the authoritative balance state. Every mutation goes
// through a write-to-temp-then-rename sequence so a crash leaves either
// the old or the new file, never a partial one.
package ledger

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/MochiMore/mochimo/chaincfg"
	"github.com/MochiMore/mochimo/wire"
)

// Store provides read access to an open ledger file. At most one Store
// should be open per ledger; the updater requires the file closed.
type Store struct {
	mtx  sync.RWMutex
	f    *os.File
	path string
	n    int64

	// Tag lookups ride a lazily-built index over the tag region of every
	// entry; the dominant full-address lookups binary-search the file
	// itself.
	tagOnce sync.Once
	tagIdx  []tagRef
	tagErr  error
}

type tagRef struct {
	tag [chaincfg.TagLen]byte
	pos int64
}

// Open opens the ledger file at path read-only. The file must hold at
// least one entry and a whole number of entries.
func Open(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open ledger %s", path)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "failed to stat ledger %s", path)
	}
	size := fi.Size()
	if size < wire.LedgerEntrySize || size%wire.LedgerEntrySize != 0 {
		f.Close()
		return nil, makeError(ErrBadFormat, fmt.Sprintf(
			"bad ledger size %d in %s", size, path))
	}
	n := size / wire.LedgerEntrySize
	log.Debugf("Opened ledger %s with %d entries", path, n)
	return &Store{f: f, path: path, n: n}, nil
}

// Close closes the store. It is idempotent.
func (s *Store) Close() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	s.n = 0
	return err
}

// Path returns the path the store was opened from.
func (s *Store) Path() string {
	return s.path
}

// N returns the number of entries in the open ledger.
func (s *Store) N() int64 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.n
}

// entryAt reads entry i into le. The caller must hold the read lock.
func (s *Store) entryAt(i int64, le *wire.LedgerEntry) error {
	var buf [wire.LedgerEntrySize]byte
	if _, err := s.f.ReadAt(buf[:], i*wire.LedgerEntrySize); err != nil {
		return errors.Wrapf(err, "failed to read ledger entry %d", i)
	}
	return le.Deserialize(bytes.NewReader(buf[:]))
}

// Entry reads entry i of the open ledger.
func (s *Store) Entry(i int64) (*wire.LedgerEntry, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	if s.f == nil {
		return nil, makeError(ErrClosed, "ledger store is closed")
	}
	if i < 0 || i >= s.n {
		return nil, errors.Errorf("ledger entry index %d out of range", i)
	}
	le := new(wire.LedgerEntry)
	if err := s.entryAt(i, le); err != nil {
		return nil, err
	}
	return le, nil
}

// Find binary-searches the ledger for an entry whose leading keyLen bytes
// equal addr. When several entries share that prefix, the one returned is
// whichever the search reaches first, not necessarily the lowest. Not finding an entry is not an error: the
// second return value reports whether one was found.
func (s *Store) Find(addr []byte, keyLen int) (*wire.LedgerEntry, bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	if s.f == nil {
		return nil, false, makeError(ErrClosed, "ledger store is closed")
	}
	if keyLen > chaincfg.AddrLen {
		keyLen = chaincfg.AddrLen
	}
	if keyLen > len(addr) {
		keyLen = len(addr)
	}

	le := new(wire.LedgerEntry)
	low, hi := int64(0), s.n-1
	for low <= hi {
		mid := (low + hi) / 2
		if err := s.entryAt(mid, le); err != nil {
			return nil, false, err
		}
		cond := bytes.Compare(addr[:keyLen], le.Addr[:keyLen])
		if cond == 0 {
			return le, true, nil
		}
		if cond < 0 {
			hi = mid - 1
		} else {
			low = mid + 1
		}
	}
	return nil, false, nil
}

// buildTagIndex scans the ledger once and builds the sorted tag index.
// The caller must hold at least the read lock.
func (s *Store) buildTagIndex() {
	idx := make([]tagRef, 0, s.n)
	le := new(wire.LedgerEntry)
	for i := int64(0); i < s.n; i++ {
		if err := s.entryAt(i, le); err != nil {
			s.tagErr = err
			return
		}
		if !le.Addr.HasTag() {
			continue
		}
		ref := tagRef{pos: i}
		copy(ref.tag[:], le.Addr.Tag())
		idx = append(idx, ref)
	}
	sort.Slice(idx, func(a, b int) bool {
		return bytes.Compare(idx[a].tag[:], idx[b].tag[:]) < 0
	})
	s.tagIdx = idx
	log.Debugf("Built tag index with %d tags over %d entries", len(idx), s.n)
}

// FindTag resolves a tag to its full ledger entry. The tag must be
// exactly TagLen bytes.
func (s *Store) FindTag(tag []byte) (*wire.LedgerEntry, bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	if s.f == nil {
		return nil, false, makeError(ErrClosed, "ledger store is closed")
	}
	if len(tag) != chaincfg.TagLen {
		return nil, false, errors.Errorf("bad tag length %d", len(tag))
	}

	s.tagOnce.Do(s.buildTagIndex)
	if s.tagErr != nil {
		return nil, false, s.tagErr
	}
	i := sort.Search(len(s.tagIdx), func(i int) bool {
		return bytes.Compare(s.tagIdx[i].tag[:], tag) >= 0
	})
	if i >= len(s.tagIdx) || !bytes.Equal(s.tagIdx[i].tag[:], tag) {
		return nil, false, nil
	}
	le := new(wire.LedgerEntry)
	if err := s.entryAt(s.tagIdx[i].pos, le); err != nil {
		return nil, false, err
	}
	return le, true, nil
}

// TagExists returns whether any ledger entry carries the given tag.
func (s *Store) TagExists(tag []byte) (bool, error) {
	_, found, err := s.FindTag(tag)
	return found, err
}
