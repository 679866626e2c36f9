// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import "time"

// Record sizes shared by every on-disk structure. All records are packed
// little-endian with no padding; the serialized form is the consensus
// contract.
const (
	// HashLen is the length of a SHA-256 digest.
	HashLen = 32

	// AddrLen is the length of a full address: a one-time public key,
	// a public seed, and the address scheme words whose final TagLen
	// bytes form the tag.
	AddrLen = 2208

	// SigLen is the length of a one-time signature, and also of the
	// public key region at the front of an address.
	SigLen = 2144

	// TagLen is the length of the tag embedded in the last bytes of an
	// address.
	TagLen = 12

	// TagOffset is the offset of the tag within an address.
	TagOffset = AddrLen - TagLen

	// SigHashLen is the length of the address/amount prefix of a
	// transaction record that is hashed to form the signature message.
	SigHashLen = 3*AddrLen + 3*8

	// TxLen is the serialized length of one transaction record:
	// three addresses, three amounts, the signature and the id.
	TxLen = 3*AddrLen + 3*8 + SigLen + HashLen

	// HeaderLen is the serialized length of a block header.
	HeaderLen = 4 + AddrLen + 8

	// TrailerLen is the serialized length of a block trailer.
	TrailerLen = HashLen + 8 + 8 + 4 + 4 + 4 + HashLen + HashLen + 4 + HashLen

	// LedgerEntryLen is the serialized length of one ledger entry.
	LedgerEntryLen = AddrLen + 8

	// LedgerTranLen is the serialized length of one ledger transaction
	// delta: address, one-byte code, amount.
	LedgerTranLen = AddrLen + 1 + 8

	// NgHeaderLen is the serialized length of a neo-genesis block header.
	NgHeaderLen = 4 + 8

	// MaxDstCount is the number of destination slots in a
	// multi-destination transaction.
	MaxDstCount = 100

	// DstZerosLen is the length of the destination-resolved flag region
	// that pads a multi-destination overlay out to a full address.
	DstZerosLen = AddrLen - MaxDstCount*(TagLen+8)

	// TrailerProofCount is the number of trailers carried in a chain
	// proof.
	TrailerProofCount = 54
)

// Params defines the consensus parameters of a network.
type Params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// MinFee is the minimum transaction fee, and also the dust bound:
	// ledger entries whose balance does not exceed it are pruned on
	// update.
	MinFee uint64

	// MaxBlockTxs is the maximum number of transactions in one block.
	MaxBlockTxs uint32

	// BridgeTime is the longest solve interval allowed before the chain
	// bridges the gap with a pseudoblock.
	BridgeTime uint32

	// ClockSkew is the wall-clock tolerance applied to a trailer's solve
	// time.
	ClockSkew uint32

	// SolveLow and SolveHigh bound the target solve window used by the
	// difficulty schedule: faster than SolveLow raises difficulty,
	// slower than SolveHigh lowers it.
	SolveLow  uint32
	SolveHigh uint32

	// WeightTrigger is the block number at which chain weight switches
	// from one unit per block to 2^difficulty per block.
	WeightTrigger uint64

	// TagTrigger is the block number from which destination tags must
	// already exist in the ledger.
	TagTrigger uint64

	// V23Trigger is the block number of the v2.3 feature fork: the
	// bridge window is enforced and the merkle context covers the block
	// header and trailer prefix.
	V23Trigger uint64

	// MTXTrigger is the block number from which multi-destination
	// transactions are recognized and signed with a zeroed flag region.
	MTXTrigger uint64

	// V24Trigger is the block number of the v2.4 fork to the
	// memory-hard proof of work.
	V24Trigger uint64

	// BoxingDayBlock is the one historic block whose proof of work is
	// bypassed if and only if its block hash equals BoxingDayHash.
	BoxingDayBlock uint64
	BoxingDayHash  [HashLen]byte

	// MaxQuorum is the maximum number of peers consulted during a
	// resync, and the bound on parallel block downloads.
	MaxQuorum int

	// Quorum is the number of peers that must independently advertise
	// the same chain tip before a resync accepts it.
	Quorum int

	// FetchRetryLimit bounds block download retries before a sync
	// attempt is declared failed.
	FetchRetryLimit int

	// FetchTimeout is the per-request download timeout.
	FetchTimeout time.Duration

	// SortBufSize is the in-memory run size of the external merge sort
	// applied to delta files.
	SortBufSize int
}

// MainnetParams defines the consensus parameters of the main network.
var MainnetParams = Params{
	Name: "mainnet",

	MinFee:      500,
	MaxBlockTxs: 32768,

	BridgeTime: 949,
	ClockSkew:  600,
	SolveLow:   143,
	SolveHigh:  284,

	WeightTrigger: 17185,
	TagTrigger:    17185,
	V23Trigger:    54321,
	MTXTrigger:    54321,
	V24Trigger:    75857,

	BoxingDayBlock: 0x52d3c,
	BoxingDayHash: [HashLen]byte{
		0x2f, 0xfa, 0xb9, 0xb9, 0x00, 0xe1, 0xbc, 0xa8,
		0x25, 0x19, 0x20, 0xc2, 0xdd, 0xf0, 0x46, 0xb8,
		0x07, 0x44, 0x2a, 0xbb, 0xfa, 0x5e, 0x94, 0x51,
		0xb0, 0x60, 0x03, 0xcc, 0x82, 0x2d, 0xb1, 0x12,
	},

	MaxQuorum:       16,
	Quorum:          4,
	FetchRetryLimit: 60,
	FetchTimeout:    30 * time.Second,

	SortBufSize: 64 * 1024 * 1024,
}

// RegressionParams defines the consensus parameters of the regression test
// network. Triggers sit at zero so every modern rule is active from the
// genesis block, and the quorum is a single peer.
var RegressionParams = Params{
	Name: "regtest",

	MinFee:      500,
	MaxBlockTxs: 32768,

	BridgeTime: 949,
	ClockSkew:  600,
	SolveLow:   143,
	SolveHigh:  284,

	WeightTrigger: 0,
	TagTrigger:    0,
	V23Trigger:    0,
	MTXTrigger:    0,
	V24Trigger:    0,

	MaxQuorum:       4,
	Quorum:          1,
	FetchRetryLimit: 4,
	FetchTimeout:    5 * time.Second,

	SortBufSize: 1024 * 1024,
}
