// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"encoding/hex"

	"github.com/MochiMore/mochimo/chaincfg"
)

// Address sizes. An address carries the one-time public key used to verify
// spends from it, the public seed and scheme words that parameterize the
// hash chains, and a tag in its final TagLen bytes.
const (
	// AddressSize is the full serialized size of an address.
	AddressSize = chaincfg.AddrLen

	// AddressPublicKeySize is the size of the one-time public key region
	// at the front of an address.
	AddressPublicKeySize = chaincfg.SigLen

	// AddressSeedSize is the size of the public seed region that follows
	// the public key.
	AddressSeedSize = 32

	// AddressSchemeSize is the size of the scheme word region at the end
	// of an address. The final TagSize bytes of this region double as
	// the address tag.
	AddressSchemeSize = 32

	// TagSize is the size of the tag embedded in the last bytes of an
	// address.
	TagSize = chaincfg.TagLen

	// tagOffset is the offset of the tag within an address.
	tagOffset = chaincfg.TagOffset
)

// Default tag type bytes. An address whose first tag byte is one of these
// carries no tag: 0x42 marks a default address produced by the reference
// wallet and 0x00 a zeroed one.
const (
	tagTypeWallet = 0x42
	tagTypeZero   = 0x00
)

// Address is a full one-time address. The serialized form is the address
// itself; there is no derived or checksummed representation.
type Address [AddressSize]byte

// PublicKey returns the one-time public key region of the address.
func (a *Address) PublicKey() []byte {
	return a[:AddressPublicKeySize]
}

// PublicSeed returns the public seed region of the address.
func (a *Address) PublicSeed() []byte {
	return a[AddressPublicKeySize : AddressPublicKeySize+AddressSeedSize]
}

// SchemeWords returns the 32-byte scheme word region at the end of the
// address. Its final TagSize bytes are the tag.
func (a *Address) SchemeWords() []byte {
	return a[AddressSize-AddressSchemeSize:]
}

// Tag returns the tag region of the address.
func (a *Address) Tag() []byte {
	return a[tagOffset:]
}

// HasTag returns whether the address carries a tag. The test is on the
// first tag byte only; the remaining tag bytes are free-form.
func (a *Address) HasTag() bool {
	return a[tagOffset] != tagTypeWallet && a[tagOffset] != tagTypeZero
}

// TagEqual returns whether two addresses carry the same tag bytes.
func (a *Address) TagEqual(b *Address) bool {
	return bytes.Equal(a.Tag(), b.Tag())
}

// String returns a short hexadecimal form of the address suitable for logs:
// the first eight bytes of the public key region.
func (a *Address) String() string {
	return hex.EncodeToString(a[:8])
}

// HasTagBytes reports whether a raw tag-or-address byte slice begins with a
// live tag type. It applies the same first-byte test as Address.HasTag to
// the given slice, which must hold at least one byte.
func HasTagBytes(tag []byte) bool {
	return tag[0] != tagTypeWallet && tag[0] != tagTypeZero
}
