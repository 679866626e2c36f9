package chain

import (
	"bytes"
	"crypto/sha256"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/MochiMore/mochimo/chaincfg"
	"github.com/MochiMore/mochimo/ledger"
	"github.com/MochiMore/mochimo/wire"
	"github.com/MochiMore/mochimo/wots"
)

// testNow is the pinned wall clock every test chain runs at.
const testNow = uint32(100000)

// addrKit couples a spendable test address with its signing material.
type addrKit struct {
	secret  [32]byte
	pubSeed [32]byte
	scheme  [32]byte
	addr    wire.Address
}

// genAddrKit derives a deterministic one-time address. The tag, when
// given, lands in the scheme word region like a real tagged address.
func genAddrKit(seed byte, tag string) *addrKit {
	k := new(addrKit)
	for i := range k.secret {
		k.secret[i] = seed
		k.pubSeed[i] = seed + 1
		k.scheme[i] = seed + 2
	}
	// The tag region defaults to untagged.
	for i := 20; i < 32; i++ {
		k.scheme[i] = 0
	}
	copy(k.scheme[20:], tag)

	pk := wots.PkGen(k.secret[:], k.pubSeed[:], wots.AddrFromBytes(k.scheme[:]))
	copy(k.addr[:], pk[:])
	copy(k.addr[wire.AddressPublicKeySize:], k.pubSeed[:])
	copy(k.addr[wire.AddressSize-wire.AddressSchemeSize:], k.scheme[:])
	return k
}

// sign signs the transaction's message with the kit's one-time key and
// fills in the transaction id.
func (k *addrKit) sign(tx *wire.Tx, clearFlags bool) {
	msg := tx.SigMessage(clearFlags)
	sig := wots.Sign(msg[:], k.secret[:], k.pubSeed[:],
		wots.AddrFromBytes(k.scheme[:]))
	tx.Sig = sig
	tx.ID = tx.ComputeID()
}

// untagged builds an address that is never spent from in a test, so it
// needs no signing material.
func untagged(fill byte) wire.Address {
	var a wire.Address
	for i := 0; i < chaincfg.TagOffset; i++ {
		a[i] = fill
	}
	return a
}

// newTestChain builds a data directory holding the given ledger entries
// and a genesis-tip chain state, and opens an engine over it.
func newTestChain(t *testing.T, entries []wire.LedgerEntry, fetcher Fetcher) *Chain {
	t.Helper()
	dir := t.TempDir()

	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Addr[:], entries[j].Addr[:]) < 0
	})
	var buf bytes.Buffer
	for i := range entries {
		if err := entries[i].Serialize(&buf); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "ledger.dat"), buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	state := State{
		Cblocknum:  0,
		Mfee:       500,
		Difficulty: 0,
		Time0:      testNow - 1000,
	}
	copy(state.Cblockhash[:], bytes.Repeat([]byte{0xa1}, wire.HashSize))
	if err := WriteState(filepath.Join(dir, "global.dat"), &state); err != nil {
		t.Fatal(err)
	}

	c, err := New(&Config{
		Params:     &chaincfg.MainnetParams,
		DataDir:    dir,
		Fetcher:    fetcher,
		TimeSource: func() uint32 { return testNow },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// buildBlock assembles a block file extending the chain's current state
// from already-signed transactions, computing the real merkle root and
// block hash. mutate, when non-nil, edits the trailer before the block
// hash is finalized.
func buildBlock(t *testing.T, c *Chain, txs []wire.Tx, maddr wire.Address,
	mutate func(*wire.BlockTrailer)) string {
	t.Helper()

	s := c.State()
	bnum := s.Cblocknum + 1
	bh := wire.BlockHeader{
		Hdrlen:  wire.BlockHeaderSize,
		Maddr:   maddr,
		Mreward: Reward(bnum),
	}

	sort.Slice(txs, func(i, j int) bool {
		return bytes.Compare(txs[i].ID[:], txs[j].ID[:]) < 0
	})

	bt := wire.BlockTrailer{
		Phash:      s.Cblockhash,
		Bnum:       bnum,
		Mfee:       s.Mfee,
		Tcount:     uint32(len(txs)),
		Time0:      s.Time0,
		Difficulty: s.Difficulty,
		Stime:      s.Time0 + 200,
	}
	copy(bt.Nonce[:], bytes.Repeat([]byte{0x77}, wire.HashSize))

	var txbuf bytes.Buffer
	for i := range txs {
		if err := txs[i].Serialize(&txbuf); err != nil {
			t.Fatal(err)
		}
	}

	mctx := sha256.New()
	if bnum >= c.params.V23Trigger {
		bh.Serialize(mctx)
	}
	mctx.Write(txbuf.Bytes())
	if bnum >= c.params.V23Trigger {
		bt.SerializeMerklePrefix(mctx)
	}
	copy(bt.Mroot[:], mctx.Sum(nil))

	if mutate != nil {
		mutate(&bt)
	}
	mine(t, &bt)

	bctx := sha256.New()
	bh.Serialize(bctx)
	bctx.Write(txbuf.Bytes())
	bt.SerializeHashPrefix(bctx)
	copy(bt.Bhash[:], bctx.Sum(nil))

	var blk bytes.Buffer
	bh.Serialize(&blk)
	blk.Write(txbuf.Bytes())
	bt.Serialize(&blk)

	path := filepath.Join(c.dataDir, "rblock.dat")
	if err := os.WriteFile(path, blk.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// readDeltas reads back every record of a delta file.
func readDeltas(t *testing.T, path string) []wire.LedgerTran {
	t.Helper()
	fp, err := os.Open(path)
	if err != nil {
		t.Fatalf("open deltas: %v", err)
	}
	defer fp.Close()
	var out []wire.LedgerTran
	for {
		var lt wire.LedgerTran
		if err := lt.Deserialize(fp); err != nil {
			if err == io.EOF {
				return out
			}
			t.Fatalf("read delta: %v", err)
		}
		out = append(out, lt)
	}
}

// TestValidateSingleTxBlock runs the canonical one-transaction block
// end to end: validation emits the exact delta set and the updater
// produces the exact post ledger. The source account is emptied and
// removed; destination, change and miner accounts appear.
func TestValidateSingleTxBlock(t *testing.T) {
	src := genAddrKit(3, "")
	dst := untagged(0x20)
	chg := untagged(0x30)
	maddr := untagged(0x40)

	c := newTestChain(t, []wire.LedgerEntry{
		{Addr: src.addr, Balance: 10000},
	}, nil)

	tx := wire.Tx{
		SrcAddr: src.addr, DstAddr: dst, ChgAddr: chg,
		SendTotal: 5000, ChangeTotal: 4499, TxFee: 501,
	}
	src.sign(&tx, false)

	path := buildBlock(t, c, []wire.Tx{tx}, maddr, nil)
	if err := c.ValidateBlock(path, false); err != nil {
		t.Fatalf("ValidateBlock: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("input not promoted away")
	}
	if _, err := os.Stat(c.path("vblock.dat")); err != nil {
		t.Fatal("no validated block")
	}

	deltas := readDeltas(t, c.path("ltran.dat"))
	want := []wire.LedgerTran{
		{Addr: src.addr, Code: wire.TranCodeDebit, Amount: 10000},
		{Addr: dst, Code: wire.TranCodeCredit, Amount: 5000},
		{Addr: chg, Code: wire.TranCodeCredit, Amount: 4499},
		{Addr: maddr, Code: wire.TranCodeCredit, Amount: 501 + Reward(1)},
	}
	if len(deltas) != len(want) {
		t.Fatalf("emitted %d deltas, want %d", len(deltas), len(want))
	}
	for i := range want {
		if deltas[i] != want[i] {
			t.Fatalf("delta %d: got (%x… %c %d), want (%x… %c %d)",
				i, deltas[i].Addr[:4], deltas[i].Code, deltas[i].Amount,
				want[i].Addr[:4], want[i].Code, want[i].Amount)
		}
	}

	// Apply through the updater and check the post ledger.
	c.closeLedger()
	if err := ledger.Update(c.path("ledger.dat"), c.path("ltran.dat"),
		c.params.SortBufSize, 500); err != nil {
		t.Fatalf("ledger.Update: %v", err)
	}
	if err := c.openLedger(); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := c.store.Find(src.addr[:], chaincfg.AddrLen); found {
		t.Fatal("emptied source survived")
	}
	for _, check := range []struct {
		addr wire.Address
		want uint64
	}{{dst, 5000}, {chg, 4499}, {maddr, 501 + Reward(1)}} {
		le, found, err := c.store.Find(check.addr[:], chaincfg.AddrLen)
		if err != nil || !found {
			t.Fatalf("post ledger missing %x…", check.addr[:4])
		}
		if le.Balance != check.want {
			t.Fatalf("post balance %x…: got %d, want %d",
				check.addr[:4], le.Balance, check.want)
		}
	}
}

// TestValidateRejections drives the validator through the rule
// violations a hostile or corrupt block can carry, checking both the
// error code and the peer-punishment class.
func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T, c *Chain, src *addrKit) string
		code  ErrorCode
		class Class
	}{
		{
			name: "merkle root bit flip",
			build: func(t *testing.T, c *Chain, src *addrKit) string {
				tx := validTx(src)
				src.sign(&tx, false)
				return buildBlock(t, c, []wire.Tx{tx}, untagged(0x40),
					func(bt *wire.BlockTrailer) { bt.Mroot[3] ^= 0x01 })
			},
			code:  ErrBadMerkleRoot,
			class: ClassBadDrop,
		},
		{
			name: "bad signature",
			build: func(t *testing.T, c *Chain, src *addrKit) string {
				tx := validTx(src)
				src.sign(&tx, false)
				tx.Sig[17] ^= 0x80
				return buildBlock(t, c, []wire.Tx{tx}, untagged(0x40), nil)
			},
			code:  ErrBadSignature,
			class: ClassBadDrop,
		},
		{
			name: "balance mismatch",
			build: func(t *testing.T, c *Chain, src *addrKit) string {
				tx := validTx(src)
				tx.SendTotal += 7 // no longer spends the balance exactly
				src.sign(&tx, false)
				return buildBlock(t, c, []wire.Tx{tx}, untagged(0x40), nil)
			},
			code:  ErrBadAmounts,
			class: ClassDrop,
		},
		{
			name: "fee below floor",
			build: func(t *testing.T, c *Chain, src *addrKit) string {
				tx := validTx(src)
				tx.TxFee = 499
				tx.ChangeTotal = 4501
				src.sign(&tx, false)
				return buildBlock(t, c, []wire.Tx{tx}, untagged(0x40), nil)
			},
			code:  ErrFeeTooLow,
			class: ClassDrop,
		},
		{
			name: "source equals change",
			build: func(t *testing.T, c *Chain, src *addrKit) string {
				tx := validTx(src)
				tx.ChgAddr = tx.SrcAddr
				src.sign(&tx, false)
				return buildBlock(t, c, []wire.Tx{tx}, untagged(0x40), nil)
			},
			code:  ErrSrcEqChg,
			class: ClassDrop,
		},
		{
			name: "unknown source",
			build: func(t *testing.T, c *Chain, src *addrKit) string {
				ghost := genAddrKit(9, "")
				tx := validTx(ghost)
				ghost.sign(&tx, false)
				return buildBlock(t, c, []wire.Tx{tx}, untagged(0x40), nil)
			},
			code:  ErrSrcNotFound,
			class: ClassDrop,
		},
		{
			name: "duplicate transaction id",
			build: func(t *testing.T, c *Chain, src *addrKit) string {
				tx1 := validTx(src)
				src.sign(&tx1, false)
				tx2 := tx1
				return buildBlock(t, c, []wire.Tx{tx1, tx2}, untagged(0x40), nil)
			},
			code:  ErrDuplicateTxID,
			class: ClassDrop,
		},
		{
			name: "tagged miner address",
			build: func(t *testing.T, c *Chain, src *addrKit) string {
				tx := validTx(src)
				src.sign(&tx, false)
				maddr := untagged(0x40)
				copy(maddr[chaincfg.TagOffset:], "miner-tag!!!")
				return buildBlock(t, c, []wire.Tx{tx}, maddr, nil)
			},
			code:  ErrTaggedMinerAddr,
			class: ClassDrop,
		},
		{
			name: "wrong reward",
			build: func(t *testing.T, c *Chain, src *addrKit) string {
				tx := validTx(src)
				src.sign(&tx, false)
				path := buildBlock(t, c, []wire.Tx{tx}, untagged(0x40), nil)
				// Bump the reward field in place; the framing stays intact.
				data, err := os.ReadFile(path)
				if err != nil {
					t.Fatal(err)
				}
				data[4+chaincfg.AddrLen]++
				if err := os.WriteFile(path, data, 0644); err != nil {
					t.Fatal(err)
				}
				return path
			},
			code:  ErrBadMinerReward,
			class: ClassDrop,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			src := genAddrKit(3, "")
			c := newTestChain(t, []wire.LedgerEntry{
				{Addr: src.addr, Balance: 10000},
			}, nil)

			path := test.build(t, c, src)
			err := c.ValidateBlock(path, false)
			if !IsRuleErrorCode(err, test.code) {
				t.Fatalf("got %v, want %v", err, test.code)
			}
			if got := Classify(err); got != test.class {
				t.Fatalf("class: got %v, want %v", got, test.class)
			}
			if _, err := os.Stat(path); !os.IsNotExist(err) {
				t.Fatal("rejected input not removed")
			}
			if _, err := os.Stat(c.path("ltran.dat")); !os.IsNotExist(err) {
				t.Fatal("rejected block left a delta file")
			}
		})
	}
}

// validTx is the baseline spend the rejection table mutates.
func validTx(src *addrKit) wire.Tx {
	return wire.Tx{
		SrcAddr: src.addr, DstAddr: untagged(0x20), ChgAddr: untagged(0x30),
		SendTotal: 5000, ChangeTotal: 4499, TxFee: 501,
	}
}

// TestValidateEmptyBlock checks a transactionless block is rejected as
// provably malicious.
func TestValidateEmptyBlock(t *testing.T) {
	src := genAddrKit(3, "")
	c := newTestChain(t, []wire.LedgerEntry{
		{Addr: src.addr, Balance: 10000},
	}, nil)

	// Hand-build a zero-transaction block with consistent framing.
	s := c.State()
	bh := wire.BlockHeader{Hdrlen: wire.BlockHeaderSize,
		Maddr: untagged(0x40), Mreward: Reward(1)}
	bt := wire.BlockTrailer{
		Phash: s.Cblockhash, Bnum: 1, Mfee: s.Mfee,
		Time0: s.Time0, Difficulty: s.Difficulty, Stime: s.Time0 + 200,
	}
	mctx := sha256.New()
	copy(bt.Mroot[:], mctx.Sum(nil))
	bctx := sha256.New()
	bh.Serialize(bctx)
	bt.SerializeHashPrefix(bctx)
	copy(bt.Bhash[:], bctx.Sum(nil))

	var blk bytes.Buffer
	bh.Serialize(&blk)
	bt.Serialize(&blk)
	path := filepath.Join(c.dataDir, "rblock.dat")
	if err := os.WriteFile(path, blk.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	err := c.ValidateBlock(path, false)
	if !IsRuleErrorCode(err, ErrBadTxCount) {
		t.Fatalf("got %v, want ErrBadTxCount", err)
	}
	if Classify(err) != ClassBadDrop {
		t.Fatal("empty block not classified malicious")
	}
}

// TestValidateMultiDst runs a multi-destination transaction with one
// resolvable tag: the resolved destination is credited, dead tags refund
// to change.
func TestValidateMultiDst(t *testing.T) {
	src := genAddrKit(3, "tag-x-spend!")
	chg := untagged(0x30)
	copy(chg[chaincfg.TagOffset:], "tag-x-spend!")
	keeper := untagged(0x50)
	copy(keeper[chaincfg.TagOffset:], "tag-2-alive!")
	maddr := untagged(0x40)

	c := newTestChain(t, []wire.LedgerEntry{
		{Addr: src.addr, Balance: 10000},
		{Addr: keeper, Balance: 1000},
	}, nil)

	tx := wire.Tx{
		SrcAddr: src.addr, ChgAddr: chg,
		SendTotal: 6000, ChangeTotal: 2500, TxFee: 1500,
	}
	m := new(wire.MultiDst)
	copy(m.Dst[0].Tag[:], "tag-1-dead!!")
	m.Dst[0].Amount = 1000
	copy(m.Dst[1].Tag[:], "tag-2-alive!")
	m.Dst[1].Amount = 2000
	copy(m.Dst[2].Tag[:], "tag-3-dead!!")
	m.Dst[2].Amount = 3000
	m.Zeros[196] = 0x01 // multi-destination marker
	m.Encode(&tx.DstAddr)
	src.sign(&tx, false)

	path := buildBlock(t, c, []wire.Tx{tx}, maddr, nil)
	if err := c.ValidateBlock(path, false); err != nil {
		t.Fatalf("ValidateBlock: %v", err)
	}

	c.closeLedger()
	if err := ledger.Update(c.path("ledger.dat"), c.path("ltran.dat"),
		c.params.SortBufSize, 500); err != nil {
		t.Fatalf("ledger.Update: %v", err)
	}
	if err := c.openLedger(); err != nil {
		t.Fatal(err)
	}

	// The live tag collected its amount; the dead tags refunded to
	// change alongside the change total itself.
	checks := []struct {
		addr wire.Address
		want uint64
	}{
		{keeper, 1000 + 2000},
		{chg, 2500 + 1000 + 3000},
		{maddr, 1500 + Reward(1)},
	}
	for _, check := range checks {
		le, found, err := c.store.Find(check.addr[:], chaincfg.AddrLen)
		if err != nil || !found {
			t.Fatalf("post ledger missing %x…", check.addr[:4])
		}
		if le.Balance != check.want {
			t.Fatalf("post balance %x…: got %d, want %d",
				check.addr[:4], le.Balance, check.want)
		}
	}
	if _, found, _ := c.store.Find(src.addr[:], chaincfg.AddrLen); found {
		t.Fatal("emptied source survived")
	}
}

// TestValidateTagRewrite checks cross-transaction tag resolution: a
// destination that references a tag whose owner moves it to a new change
// address in the same block is rewritten to that change address before
// deltas are emitted.
func TestValidateTagRewrite(t *testing.T) {
	mover := genAddrKit(3, "tag-x-moves!")
	newHome := untagged(0x35)
	copy(newHome[chaincfg.TagOffset:], "tag-x-moves!")
	payer := genAddrKit(7, "")
	stale := untagged(0x55)
	copy(stale[chaincfg.TagOffset:], "tag-x-moves!")
	maddr := untagged(0x40)

	c := newTestChain(t, []wire.LedgerEntry{
		{Addr: mover.addr, Balance: 10000},
		{Addr: payer.addr, Balance: 8000},
	}, nil)

	// The tag owner spends, carrying the tag to a fresh change address.
	tx1 := wire.Tx{
		SrcAddr: mover.addr, DstAddr: untagged(0x25), ChgAddr: newHome,
		SendTotal: 3000, ChangeTotal: 6499, TxFee: 501,
	}
	mover.sign(&tx1, false)

	// Another spend pays the tag through a stale full address.
	tx2 := wire.Tx{
		SrcAddr: payer.addr, DstAddr: stale, ChgAddr: untagged(0x36),
		SendTotal: 4000, ChangeTotal: 3499, TxFee: 501,
	}
	payer.sign(&tx2, false)

	path := buildBlock(t, c, []wire.Tx{tx1, tx2}, maddr, nil)
	if err := c.ValidateBlock(path, false); err != nil {
		t.Fatalf("ValidateBlock: %v", err)
	}

	deltas := readDeltas(t, c.path("ltran.dat"))
	var toNewHome, toStale uint64
	for _, lt := range deltas {
		if lt.Code != wire.TranCodeCredit {
			continue
		}
		if lt.Addr == newHome {
			toNewHome += lt.Amount
		}
		if lt.Addr == stale {
			toStale += lt.Amount
		}
	}
	if toStale != 0 {
		t.Fatalf("stale address still credited %d", toStale)
	}
	// The rewritten destination credit joins the owner's own change.
	if toNewHome != 6499+4000 {
		t.Fatalf("rewritten credits: got %d, want %d", toNewHome, 6499+4000)
	}
}
