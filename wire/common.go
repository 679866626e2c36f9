// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"io"

	"github.com/MochiMore/mochimo/util/binaryserializer"
)

// littleEndian is a convenience variable since binary.LittleEndian is
// quite long.
var littleEndian = binary.LittleEndian

// ReadElement reads the next sequence of bytes from r using little endian
// depending on the concrete type of element pointed to.
func ReadElement(r io.Reader, element interface{}) error {
	// Attempt to read the element based on the concrete type via fast
	// type assertions first.
	switch e := element.(type) {
	case *uint32:
		rv, err := binaryserializer.Uint32(r, littleEndian)
		if err != nil {
			return err
		}
		*e = rv
		return nil

	case *uint64:
		rv, err := binaryserializer.Uint64(r, littleEndian)
		if err != nil {
			return err
		}
		*e = rv
		return nil

	case *byte:
		rv, err := binaryserializer.Uint8(r)
		if err != nil {
			return err
		}
		*e = rv
		return nil

	case *Hash:
		_, err := io.ReadFull(r, e[:])
		if err != nil {
			return err
		}
		return nil

	case *Address:
		_, err := io.ReadFull(r, e[:])
		if err != nil {
			return err
		}
		return nil

	case []byte:
		_, err := io.ReadFull(r, e)
		if err != nil {
			return err
		}
		return nil
	}

	// Fall back to the slower binary.Read if a fast path was not available
	// above.
	return binary.Read(r, littleEndian, element)
}

// readElements reads multiple items from r. It is equivalent to multiple
// calls to ReadElement.
func readElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		err := ReadElement(r, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteElement writes the little endian representation of element to w.
func WriteElement(w io.Writer, element interface{}) error {
	// Attempt to write the element based on the concrete type via fast
	// type assertions first.
	switch e := element.(type) {
	case uint32:
		return binaryserializer.PutUint32(w, littleEndian, e)

	case uint64:
		return binaryserializer.PutUint64(w, littleEndian, e)

	case byte:
		return binaryserializer.PutUint8(w, e)

	case *Hash:
		_, err := w.Write(e[:])
		return err

	case *Address:
		_, err := w.Write(e[:])
		return err

	case []byte:
		_, err := w.Write(e)
		return err
	}

	// Fall back to the slower binary.Write if a fast path was not available
	// above.
	return binary.Write(w, littleEndian, element)
}

// writeElements writes multiple items to w. It is equivalent to multiple
// calls to WriteElement.
func writeElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		err := WriteElement(w, element)
		if err != nil {
			return err
		}
	}
	return nil
}
