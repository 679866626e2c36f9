// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/hex"
	"fmt"

	"github.com/MochiMore/mochimo/chaincfg"
)

// HashSize is the size of the array used to store hashes.
const HashSize = chaincfg.HashLen

// Hash is used in several of the node's records and common structures. It
// typically represents a SHA-256 digest of data.
type Hash [HashSize]byte

// String returns the Hash as the hexadecimal string of the byte-encoded
// digest.
func (hash Hash) String() string {
	return hex.EncodeToString(hash[:])
}

// IsEqual returns true if target is the same as hash.
func (hash *Hash) IsEqual(target *Hash) bool {
	if hash == nil && target == nil {
		return true
	}
	if hash == nil || target == nil {
		return false
	}
	return *hash == *target
}

// SetBytes sets the bytes which represent the hash. An error is returned if
// the number of bytes passed in is not HashSize.
func (hash *Hash) SetBytes(newHash []byte) error {
	if len(newHash) != HashSize {
		return fmt.Errorf("invalid hash length of %d, want %d",
			len(newHash), HashSize)
	}
	copy(hash[:], newHash)
	return nil
}

// NewHashFromStr creates a Hash from a hash string. The string should be the
// hexadecimal string of a byte-encoded hash.
func NewHashFromStr(src string) (*Hash, error) {
	decoded, err := hex.DecodeString(src)
	if err != nil {
		return nil, err
	}
	hash := new(Hash)
	if err := hash.SetBytes(decoded); err != nil {
		return nil, err
	}
	return hash, nil
}
