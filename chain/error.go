// Copyright (c) 2014-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"errors"
	"fmt"

	"github.com/MochiMore/mochimo/ledger"
)

// ErrorCode identifies a kind of consensus rule violation.
type ErrorCode int

// These constants are used to identify a specific RuleError.
const (
	// ErrBadHeaderLen indicates a block whose header length field does
	// not match the fixed header size.
	ErrBadHeaderLen ErrorCode = iota

	// ErrBadBlockLength indicates a block file whose byte length does
	// not match its transaction count.
	ErrBadBlockLength

	// ErrBadTxCount indicates a transaction count of zero or above the
	// maximum. Provably malicious.
	ErrBadTxCount

	// ErrFeeTooLow indicates a trailer or transaction fee below the
	// current floor.
	ErrFeeTooLow

	// ErrDifficultyMismatch indicates a trailer whose difficulty does
	// not match the chain state.
	ErrDifficultyMismatch

	// ErrTimeTooOld indicates a solve time at or before the previous
	// block's.
	ErrTimeTooOld

	// ErrTimeTooNew indicates a solve time beyond the wall clock
	// tolerance.
	ErrTimeTooNew

	// ErrBridgeExceeded indicates a solve interval beyond the bridge
	// window on a post-fork block.
	ErrBridgeExceeded

	// ErrBadBlockNum indicates a trailer whose block number does not
	// extend the chain by one.
	ErrBadBlockNum

	// ErrBadPrevHash indicates a trailer whose previous-hash does not
	// link to the chain tip.
	ErrBadPrevHash

	// ErrBadProofOfWork indicates a trailer that fails its generation's
	// proof-of-work predicate.
	ErrBadProofOfWork

	// ErrBadMinerReward indicates a header reward that contradicts the
	// reward schedule.
	ErrBadMinerReward

	// ErrTaggedMinerAddr indicates a mining address carrying a tag.
	ErrTaggedMinerAddr

	// ErrSrcEqChg indicates a transaction whose source and change
	// addresses are identical.
	ErrSrcEqChg

	// ErrSrcEqDst indicates a transaction whose source and destination
	// addresses are identical.
	ErrSrcEqDst

	// ErrBadTxID indicates a stored transaction id that does not equal
	// the digest of the source address.
	ErrBadTxID

	// ErrTxUnsorted indicates a transaction array not sorted by id.
	ErrTxUnsorted

	// ErrDuplicateTxID indicates two transactions with the same id in
	// one block.
	ErrDuplicateTxID

	// ErrBadSignature indicates a one-time signature that does not
	// recover the source public key. Provably malicious.
	ErrBadSignature

	// ErrSrcNotFound indicates a spend from an address the ledger does
	// not hold.
	ErrSrcNotFound

	// ErrAmountOverflow indicates 64-bit overflow summing amounts.
	ErrAmountOverflow

	// ErrBadAmounts indicates amounts that do not spend the source
	// balance exactly.
	ErrBadAmounts

	// ErrBadTags indicates a violation of the tag movement rules.
	ErrBadTags

	// ErrBadMultiDst indicates a malformed multi-destination overlay.
	ErrBadMultiDst

	// ErrBadMerkleRoot indicates a trailer merkle root that does not
	// match the transaction array. Provably malicious.
	ErrBadMerkleRoot

	// ErrBadBlockHash indicates a trailer block hash that does not match
	// the block contents.
	ErrBadBlockHash

	// ErrBadNeoGenesis indicates a malformed neo-genesis block.
	ErrBadNeoGenesis

	// ErrBadTfile indicates a trailer file that fails its chain walk.
	ErrBadTfile

	// ErrLowWeight indicates an advertised chain that does not outweigh
	// ours.
	ErrLowWeight

	// ErrBadProof indicates a trailer proof that fails validation or
	// does not contain a split point.
	ErrBadProof

	// ErrNoQuorum indicates the peer quorum emptied before the operation
	// finished.
	ErrNoQuorum
)

// errorCodeStrings is a map of error codes back to their constant names
// for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrBadHeaderLen:       "ErrBadHeaderLen",
	ErrBadBlockLength:     "ErrBadBlockLength",
	ErrBadTxCount:         "ErrBadTxCount",
	ErrFeeTooLow:          "ErrFeeTooLow",
	ErrDifficultyMismatch: "ErrDifficultyMismatch",
	ErrTimeTooOld:         "ErrTimeTooOld",
	ErrTimeTooNew:         "ErrTimeTooNew",
	ErrBridgeExceeded:     "ErrBridgeExceeded",
	ErrBadBlockNum:        "ErrBadBlockNum",
	ErrBadPrevHash:        "ErrBadPrevHash",
	ErrBadProofOfWork:     "ErrBadProofOfWork",
	ErrBadMinerReward:     "ErrBadMinerReward",
	ErrTaggedMinerAddr:    "ErrTaggedMinerAddr",
	ErrSrcEqChg:           "ErrSrcEqChg",
	ErrSrcEqDst:           "ErrSrcEqDst",
	ErrBadTxID:            "ErrBadTxID",
	ErrTxUnsorted:         "ErrTxUnsorted",
	ErrDuplicateTxID:      "ErrDuplicateTxID",
	ErrBadSignature:       "ErrBadSignature",
	ErrSrcNotFound:        "ErrSrcNotFound",
	ErrAmountOverflow:     "ErrAmountOverflow",
	ErrBadAmounts:         "ErrBadAmounts",
	ErrBadTags:            "ErrBadTags",
	ErrBadMultiDst:        "ErrBadMultiDst",
	ErrBadMerkleRoot:      "ErrBadMerkleRoot",
	ErrBadBlockHash:       "ErrBadBlockHash",
	ErrBadNeoGenesis:      "ErrBadNeoGenesis",
	ErrBadTfile:           "ErrBadTfile",
	ErrLowWeight:          "ErrLowWeight",
	ErrBadProof:           "ErrBadProof",
	ErrNoQuorum:           "ErrNoQuorum",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// badDropCodes is the set of codes that mark an object as provably
// malicious: the supplying peer is pink-listed, not merely dropped.
var badDropCodes = map[ErrorCode]struct{}{
	ErrBadTxCount:    {},
	ErrBadSignature:  {},
	ErrBadMerkleRoot: {},
}

// RuleError identifies a rule violation. It is used to indicate that
// processing of a block or delta file failed due to one of the many
// validation rules. The caller can use type assertions to access the
// ErrorCode field to determine the specific reason for the failure.
type RuleError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// ruleError creates a RuleError given a set of arguments.
func ruleError(c ErrorCode, desc string) RuleError {
	return RuleError{ErrorCode: c, Description: desc}
}

// IsRuleErrorCode returns whether err is a RuleError with the given code.
func IsRuleErrorCode(err error, c ErrorCode) bool {
	var e RuleError
	return errors.As(err, &e) && e.ErrorCode == c
}

// Class is the failure classification callers act on: whether to
// quietly discard an object, punish the peer that supplied it, or treat
// the failure as local.
type Class int

const (
	// ClassOK marks success.
	ClassOK Class = iota

	// ClassDrop marks an object that is malformed but not provably
	// malicious. It is discarded without punishing the peer.
	ClassDrop

	// ClassBadDrop marks a provably malicious object. The supplying
	// peer is pink-listed.
	ClassBadDrop

	// ClassBail marks a local I/O or resource failure. It propagates
	// upward without peer penalty.
	ClassBail
)

// Classify maps an error to its failure class. Rule violations classify
// by their code; malicious ledger deltas classify as BadDrop; anything
// else is a local failure.
func Classify(err error) Class {
	if err == nil {
		return ClassOK
	}
	var re RuleError
	if errors.As(err, &re) {
		if _, ok := badDropCodes[re.ErrorCode]; ok {
			return ClassBadDrop
		}
		return ClassDrop
	}
	if ledger.IsMalicious(err) {
		return ClassBadDrop
	}
	return ClassBail
}
