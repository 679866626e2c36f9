// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"os"
	"sort"

	"github.com/pkg/errors"
)

// Filesort sorts a file of fixed-size records in place. Runs that fit the
// buffer are sorted in memory with a stable sort; larger files then go through an
// external merge sort that doubles the sorted block size each pass,
// writing to a sibling ".sort" temp file and renaming it back.
func Filesort(path string, recSize, bufSize int, less func(a, b []byte) bool) error {
	if recSize <= 0 || bufSize < recSize {
		return errors.Errorf("bad filesort parameters rec=%d buf=%d", recSize, bufSize)
	}
	// Whole records per run.
	runRecs := bufSize / recSize
	runBytes := runRecs * recSize

	// Phase 1: pre-sort runs of data in place.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s for sorting", path)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to stat %s", path)
	}
	fileLen := fi.Size()
	if fileLen%int64(recSize) != 0 {
		f.Close()
		return makeError(ErrBadFormat, "file is not a whole number of records")
	}

	buf := make([]byte, runBytes)
	for off := int64(0); off < fileLen; off += int64(runBytes) {
		chunk := buf
		if remain := fileLen - off; remain < int64(runBytes) {
			chunk = buf[:remain]
		}
		if _, err := f.ReadAt(chunk, off); err != nil {
			f.Close()
			return errors.Wrapf(err, "failed to read run at %d", off)
		}
		n := len(chunk) / recSize
		sort.Stable(&recSorter{buf: chunk, recSize: recSize, n: n,
			less: less, tmp: make([]byte, recSize)})
		if _, err := f.WriteAt(chunk, off); err != nil {
			f.Close()
			return errors.Wrapf(err, "failed to write run at %d", off)
		}
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", path)
	}

	// Phase 2: merge sorted blocks together until nothing is left to
	// merge.
	tmp := path + ".sort"
	for block := int64(runBytes); block < fileLen; block <<= 1 {
		if err := mergePass(path, tmp, fileLen, block, recSize, less); err != nil {
			os.Remove(tmp)
			return err
		}
		if err := os.Remove(path); err != nil {
			return errors.Wrapf(err, "failed to remove %s", path)
		}
		if err := os.Rename(tmp, path); err != nil {
			return errors.Wrapf(err, "failed to rename %s", tmp)
		}
	}
	return nil
}

// recSorter adapts a byte buffer of n fixed-size records to
// sort.Interface.
type recSorter struct {
	buf     []byte
	recSize int
	n       int
	less    func(a, b []byte) bool
	tmp     []byte
}

func (r *recSorter) Len() int { return r.n }

func (r *recSorter) Less(a, b int) bool {
	return r.less(r.buf[a*r.recSize:(a+1)*r.recSize],
		r.buf[b*r.recSize:(b+1)*r.recSize])
}

func (r *recSorter) Swap(a, b int) {
	ra := r.buf[a*r.recSize : (a+1)*r.recSize]
	rb := r.buf[b*r.recSize : (b+1)*r.recSize]
	copy(r.tmp, ra)
	copy(ra, rb)
	copy(rb, r.tmp)
}

// mergePass merges adjacent sorted blocks of the given size from src into
// dst.
func mergePass(src, dst string, fileLen, block int64, recSize int,
	less func(a, b []byte) bool) error {

	afp, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", src)
	}
	defer afp.Close()
	bfp, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", src)
	}
	defer bfp.Close()
	ofp, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", dst)
	}
	defer ofp.Close()

	a := make([]byte, recSize)
	b := make([]byte, recSize)

	for start := int64(0); start < fileLen; {
		mid := start + block
		end := mid + block
		if mid > fileLen {
			mid, end = fileLen, fileLen
		} else if end > fileLen {
			end = fileLen
		}
		aidx, bidx := start, mid

		if aidx < mid {
			if _, err := afp.ReadAt(a, aidx); err != nil {
				return errors.Wrap(err, "merge read")
			}
		}
		if bidx < end {
			if _, err := bfp.ReadAt(b, bidx); err != nil {
				return errors.Wrap(err, "merge read")
			}
		}
		for aidx < mid || bidx < end {
			var takeA bool
			switch {
			case aidx >= mid:
				takeA = false
			case bidx >= end:
				takeA = true
			default:
				takeA = !less(b, a)
			}
			if takeA {
				if _, err := ofp.Write(a); err != nil {
					return errors.Wrap(err, "merge write")
				}
				aidx += int64(recSize)
				if aidx < mid {
					if _, err := afp.ReadAt(a, aidx); err != nil {
						return errors.Wrap(err, "merge read")
					}
				}
			} else {
				if _, err := ofp.Write(b); err != nil {
					return errors.Wrap(err, "merge write")
				}
				bidx += int64(recSize)
				if bidx < end {
					if _, err := bfp.ReadAt(b, bidx); err != nil {
						return errors.Wrap(err, "merge read")
					}
				}
			}
		}
		start = end
	}
	return errors.Wrap(ofp.Sync(), "merge sync")
}
