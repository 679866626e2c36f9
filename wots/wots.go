// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wots implements the Winternitz one-time signature scheme the
// chain's addresses are built on. The node only ever verifies, via
// PkFromSig; key generation and signing exist for wallets and tests.
package wots

import (
	"crypto/sha256"
	"encoding/binary"
)

// Scheme parameters. The digest is SHA-256 and the Winternitz parameter is
// 16, giving 64 message chains plus 3 checksum chains.
const (
	// ParamsN is the security parameter: the byte length of the digest
	// and of every chain node.
	ParamsN = 32

	// WotsW is the Winternitz parameter.
	WotsW = 16

	// WotsLogW is log2(WotsW).
	WotsLogW = 4

	// WotsLen1 is the number of message chains.
	WotsLen1 = 8 * ParamsN / WotsLogW

	// WotsLen2 is the number of checksum chains.
	WotsLen2 = 3

	// WotsLen is the total number of chains.
	WotsLen = WotsLen1 + WotsLen2

	// SigBytes is the byte length of a signature, and of a public key.
	SigBytes = WotsLen * ParamsN
)

// Domain separation constants for the keyed hash.
const (
	paddingF   = 0
	paddingPRF = 3
)

// Addr is the hash-address word set that parameterizes every chain step.
// The scheme word region of an address seeds it; the chain, hash and
// key-and-mask words are filled in per step.
type Addr [8]uint32

// AddrFromBytes unpacks the 32-byte scheme word region of an address into
// hash-address words.
func AddrFromBytes(b []byte) Addr {
	var a Addr
	for i := 0; i < 8; i++ {
		a[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return a
}

func (a *Addr) setChainAddr(chain uint32) { a[5] = chain }
func (a *Addr) setHashAddr(hash uint32)   { a[6] = hash }
func (a *Addr) setKeyAndMask(km uint32)   { a[7] = km }

// toBytes packs the hash-address words big-endian for hashing.
func (a *Addr) toBytes(out []byte) {
	for i := 0; i < 8; i++ {
		binary.BigEndian.PutUint32(out[i*4:], a[i])
	}
}

// prf computes the keyed pseudo-random function over a 32-byte input.
func prf(out, in, key []byte) {
	var buf [2*ParamsN + ParamsN]byte
	buf[ParamsN-1] = paddingPRF
	copy(buf[ParamsN:], key)
	copy(buf[2*ParamsN:], in)
	sum := sha256.Sum256(buf[:])
	copy(out, sum[:])
}

// thashF computes the chain function: a keyed hash of the input XORed with
// a per-step bitmask, both derived from the public seed and the
// hash-address words.
func thashF(out, in, pubSeed []byte, addr *Addr) {
	var buf [3 * ParamsN]byte
	var addrBytes [32]byte
	var key, bitmask [ParamsN]byte

	buf[ParamsN-1] = paddingF

	addr.setKeyAndMask(0)
	addr.toBytes(addrBytes[:])
	prf(key[:], addrBytes[:], pubSeed)

	addr.setKeyAndMask(1)
	addr.toBytes(addrBytes[:])
	prf(bitmask[:], addrBytes[:], pubSeed)

	copy(buf[ParamsN:], key[:])
	for i := 0; i < ParamsN; i++ {
		buf[2*ParamsN+i] = in[i] ^ bitmask[i]
	}
	sum := sha256.Sum256(buf[:])
	copy(out, sum[:])
}

// genChain iterates the chain function steps times on in, starting at
// chain position start.
func genChain(out, in []byte, start, steps uint32, pubSeed []byte, addr *Addr) {
	copy(out, in[:ParamsN])
	for i := start; i < start+steps && i < WotsW; i++ {
		addr.setHashAddr(i)
		thashF(out, out, pubSeed, addr)
	}
}

// baseW converts a byte string to base-16 digits, most significant nibble
// first.
func baseW(out []uint8, outLen int, in []byte) {
	consumed := 0
	var total uint8
	bits := 0
	for i := 0; i < outLen; i++ {
		if bits == 0 {
			total = in[consumed]
			consumed++
			bits = 8
		}
		bits -= WotsLogW
		out[i] = (total >> uint(bits)) & (WotsW - 1)
	}
}

// chainLengths computes the chain position each signature element must be
// advanced from: the base-16 message digits followed by the checksum
// digits.
func chainLengths(msg []byte) [WotsLen]uint8 {
	var lengths [WotsLen]uint8
	baseW(lengths[:WotsLen1], WotsLen1, msg)

	var csum uint32
	for i := 0; i < WotsLen1; i++ {
		csum += WotsW - 1 - uint32(lengths[i])
	}
	// Left-shift the checksum so its top bits line up with the first
	// checksum digit.
	csum <<= 8 - ((WotsLen2 * WotsLogW) % 8)
	var csumBytes [2]byte
	binary.BigEndian.PutUint16(csumBytes[:], uint16(csum))
	baseW(lengths[WotsLen1:], WotsLen2, csumBytes[:])
	return lengths
}

// PkFromSig derives the public key a signature commits to for the given
// message. The caller compares the result against the public key region
// of the source address; the signature is valid exactly when they match.
func PkFromSig(sig, msg, pubSeed []byte, addr Addr) [SigBytes]byte {
	var pk [SigBytes]byte
	lengths := chainLengths(msg)
	for i := 0; i < WotsLen; i++ {
		addr.setChainAddr(uint32(i))
		genChain(pk[i*ParamsN:(i+1)*ParamsN], sig[i*ParamsN:],
			uint32(lengths[i]), WotsW-1-uint32(lengths[i]), pubSeed, &addr)
	}
	return pk
}

// expandSeed derives the per-chain secret starting nodes from a 32-byte
// secret seed.
func expandSeed(out []byte, seed []byte) {
	var ctr [ParamsN]byte
	for i := 0; i < WotsLen; i++ {
		ctr[ParamsN-1] = byte(i)
		ctr[ParamsN-2] = byte(i >> 8)
		prf(out[i*ParamsN:], ctr[:], seed)
	}
}

// PkGen derives the public key of the one-time key pair seeded by
// secretSeed.
func PkGen(secretSeed, pubSeed []byte, addr Addr) [SigBytes]byte {
	var pk [SigBytes]byte
	expandSeed(pk[:], secretSeed)
	for i := 0; i < WotsLen; i++ {
		addr.setChainAddr(uint32(i))
		genChain(pk[i*ParamsN:(i+1)*ParamsN], pk[i*ParamsN:],
			0, WotsW-1, pubSeed, &addr)
	}
	return pk
}

// Sign produces the one-time signature of msg under the key pair seeded
// by secretSeed. Signing twice with the same seed leaks key material;
// the scheme is strictly one-time.
func Sign(msg, secretSeed, pubSeed []byte, addr Addr) [SigBytes]byte {
	var sig [SigBytes]byte
	expandSeed(sig[:], secretSeed)
	lengths := chainLengths(msg)
	for i := 0; i < WotsLen; i++ {
		addr.setChainAddr(uint32(i))
		genChain(sig[i*ParamsN:(i+1)*ParamsN], sig[i*ParamsN:],
			0, uint32(lengths[i]), pubSeed, &addr)
	}
	return sig
}
