package chain

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/MochiMore/mochimo/chaincfg"
	"github.com/MochiMore/mochimo/wire"
)

// mine brute-forces the trailer nonce until the legacy proof passes at
// the trailer's difficulty. Test difficulties stay tiny so this takes a
// handful of hashes.
func mine(t *testing.T, bt *wire.BlockTrailer) {
	t.Helper()
	for n := uint64(0); n < 1<<20; n++ {
		binary.LittleEndian.PutUint64(bt.Nonce[:], n)
		if CheckPoW(bt, &chaincfg.MainnetParams) == nil {
			return
		}
	}
	t.Fatal("failed to mine a test trailer")
}

// seal fills in a synthetic block hash so successors can link to the
// trailer.
func seal(bt *wire.BlockTrailer) {
	var buf bytes.Buffer
	bt.SerializeHashPrefix(&buf)
	bt.Bhash = wire.Hash(sha256.Sum256(buf.Bytes()))
}

// genesisTrailer builds the block-zero anchor every test tfile starts
// from.
func genesisTrailer() wire.BlockTrailer {
	bt := wire.BlockTrailer{
		Bnum:       0,
		Time0:      1000,
		Stime:      1200,
		Difficulty: 2,
	}
	seal(&bt)
	return bt
}

// extend builds, mines and seals the next trailer over prev. solve
// chooses the solve interval; zero transactions make a pseudoblock.
func extend(t *testing.T, prev *wire.BlockTrailer, tcount, solve uint32) wire.BlockTrailer {
	t.Helper()
	params := &chaincfg.MainnetParams
	bt := wire.BlockTrailer{
		Phash:      prev.Bhash,
		Bnum:       prev.Bnum + 1,
		Tcount:     tcount,
		Time0:      prev.Stime,
		Difficulty: NextDifficulty(prev, params),
		Stime:      prev.Stime + solve,
	}
	if tcount == 0 {
		bt.Stime = bt.Time0 + params.BridgeTime
	} else {
		bt.Mfee = params.MinFee
		copy(bt.Mroot[:], bytes.Repeat([]byte{0x5a}, wire.HashSize))
		mine(t, &bt)
	}
	seal(&bt)
	return bt
}

// writeTfile serializes trailers to path.
func writeTfile(t *testing.T, path string, trailers []wire.BlockTrailer) {
	t.Helper()
	var buf bytes.Buffer
	for i := range trailers {
		if err := trailers[i].Serialize(&buf); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

// testChain builds a well-formed trailer chain: genesis, two mined
// blocks, a pseudoblock bridge, and one more mined block.
func testChainTrailers(t *testing.T) []wire.BlockTrailer {
	t.Helper()
	trailers := []wire.BlockTrailer{genesisTrailer()}
	grow := func(tcount, solve uint32) {
		trailers = append(trailers,
			extend(t, &trailers[len(trailers)-1], tcount, solve))
	}
	grow(1, 200)
	grow(3, 200)
	grow(0, 0)
	grow(2, 200)
	return trailers
}

func TestValidateTfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tfile.dat")
	trailers := testChainTrailers(t)
	writeTfile(t, path, trailers)

	now := trailers[len(trailers)-1].Stime + 10
	bnum, weight, err := ValidateTfile(path, now, &chaincfg.MainnetParams)
	if err != nil {
		t.Fatalf("ValidateTfile: %v", err)
	}
	if bnum != 4 {
		t.Fatalf("final block: got %d, want 4", bnum)
	}
	// Every post-genesis trailer adds one unit this far below the
	// weight trigger.
	if weight[0] != 4 {
		t.Fatalf("weight: got %d, want 4", weight[0])
	}

	// Broken linkage is caught.
	bad := append([]wire.BlockTrailer{}, trailers...)
	bad[2].Phash[0] ^= 1
	writeTfile(t, path, bad)
	if _, _, err := ValidateTfile(path, now, &chaincfg.MainnetParams); err == nil {
		t.Fatal("broken linkage validated")
	}

	// A tampered pseudoblock window is caught.
	bad = append([]wire.BlockTrailer{}, trailers...)
	bad[3].Stime++
	writeTfile(t, path, bad)
	if _, _, err := ValidateTfile(path, now, &chaincfg.MainnetParams); err == nil {
		t.Fatal("tampered pseudoblock validated")
	}

	// A failed proof of work is caught. Search forward for a nonce the
	// predicate definitely rejects.
	bad = append([]wire.BlockTrailer{}, trailers...)
	for n := uint64(0); ; n++ {
		binary.LittleEndian.PutUint64(bad[4].Nonce[:], n)
		if CheckPoW(&bad[4], &chaincfg.MainnetParams) != nil {
			break
		}
	}
	seal(&bad[4])
	writeTfile(t, path, bad)
	if _, _, err := ValidateTfile(path, now, &chaincfg.MainnetParams); err == nil {
		t.Fatal("unproven trailer validated")
	}
}

func TestTrimAndReadTfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tfile.dat")
	trailers := testChainTrailers(t)
	writeTfile(t, path, trailers)

	got, err := ReadTfile(path, 2, 10)
	if err != nil {
		t.Fatalf("ReadTfile: %v", err)
	}
	if len(got) != 3 || got[0] != trailers[2] {
		t.Fatalf("ReadTfile returned %d trailers from block %d",
			len(got), got[0].Bnum)
	}

	if err := TrimTfile(path, 1); err != nil {
		t.Fatalf("TrimTfile: %v", err)
	}
	last, err := ReadTrailer(path)
	if err != nil {
		t.Fatalf("ReadTrailer: %v", err)
	}
	if last.Bnum != 1 {
		t.Fatalf("trimmed tip: got %d, want 1", last.Bnum)
	}

	next := extend(t, last, 1, 200)
	if err := AppendTrailer(path, &next); err != nil {
		t.Fatalf("AppendTrailer: %v", err)
	}
	last, err = ReadTrailer(path)
	if err != nil {
		t.Fatal(err)
	}
	if last.Bnum != 2 {
		t.Fatalf("appended tip: got %d, want 2", last.Bnum)
	}
}

func TestNgVal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ngblock.dat")

	entries := []wire.LedgerEntry{
		{Addr: untagged(0x11), Balance: 1000},
		{Addr: untagged(0x22), Balance: 2000},
	}
	write := func(bnum uint64, entries []wire.LedgerEntry) {
		var buf bytes.Buffer
		ngh := wire.NgHeader{
			Hdrlen: wire.NgHeaderSize,
			Lbytes: uint64(len(entries)) * wire.LedgerEntrySize,
		}
		ngh.Serialize(&buf)
		for i := range entries {
			entries[i].Serialize(&buf)
		}
		bt := wire.BlockTrailer{Bnum: bnum}
		bt.Serialize(&buf)
		if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
			t.Fatal(err)
		}
	}

	write(512, entries)
	if err := NgVal(path, 512); err != nil {
		t.Fatalf("NgVal: %v", err)
	}

	if err := NgVal(path, 513); !IsRuleErrorCode(err, ErrBadNeoGenesis) {
		t.Fatalf("off-boundary number: got %v", err)
	}
	if err := NgVal(path, 768); !IsRuleErrorCode(err, ErrBadNeoGenesis) {
		t.Fatalf("wrong trailer number: got %v", err)
	}

	// Unsorted snapshots are rejected.
	write(512, []wire.LedgerEntry{entries[1], entries[0]})
	if err := NgVal(path, 512); !IsRuleErrorCode(err, ErrBadNeoGenesis) {
		t.Fatalf("unsorted snapshot: got %v", err)
	}
}

func TestCheckProof(t *testing.T) {
	// Grow a chain exactly one proof window long; the proof is our own
	// trailer set, so the base matches and the first agreement after it
	// is the split.
	trailers := []wire.BlockTrailer{genesisTrailer()}
	for len(trailers) < chaincfg.TrailerProofCount {
		trailers = append(trailers,
			extend(t, &trailers[len(trailers)-1], 1, 200))
	}

	src := genAddrKit(3, "")
	c := newTestChain(t, []wire.LedgerEntry{
		{Addr: src.addr, Balance: 10000},
	}, nil)
	writeTfile(t, c.path("tfile.dat"), trailers)

	adv, err := WeighTfile(c.path("tfile.dat"), trailers[len(trailers)-1].Bnum,
		c.params)
	if err != nil {
		t.Fatal(err)
	}

	split, err := c.CheckProof(trailers, adv)
	if err != nil {
		t.Fatalf("CheckProof: %v", err)
	}
	if split != 1 {
		t.Fatalf("split: got %d, want 1", split)
	}

	// A short proof is rejected outright.
	if _, err := c.CheckProof(trailers[:10], adv); !IsRuleErrorCode(err, ErrBadProof) {
		t.Fatalf("short proof: got %v", err)
	}

	// A proof whose base is not on our chain is rejected.
	foreign := append([]wire.BlockTrailer{}, trailers...)
	foreign[0].Bhash[0] ^= 1
	if _, err := c.CheckProof(foreign, adv); !IsRuleErrorCode(err, ErrBadProof) {
		t.Fatalf("foreign base: got %v", err)
	}

	// An overstated weight advertisement is rejected.
	overstated := adv
	overstated.Add(200, chaincfg.MainnetParams.WeightTrigger, c.params)
	if _, err := c.CheckProof(trailers, overstated); !IsRuleErrorCode(err, ErrBadProof) {
		t.Fatalf("overstated weight: got %v", err)
	}
}
