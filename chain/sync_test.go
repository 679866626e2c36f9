package chain

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/pkg/errors"

	"github.com/MochiMore/mochimo/chaincfg"
	"github.com/MochiMore/mochimo/wire"
)

// dirFetcher serves block files out of a local directory, standing in
// for the network transport.
type dirFetcher struct {
	dir string
}

func (f *dirFetcher) FetchTfile(peer, dst string) error {
	return copyFile(filepath.Join(f.dir, "tfile.dat"), dst)
}

func (f *dirFetcher) FetchBlock(peer string, bnum uint64, dst string) error {
	src := filepath.Join(f.dir, bcName(bnum))
	if _, err := os.Stat(src); err != nil {
		return errors.Errorf("no block %d", bnum)
	}
	return copyFile(src, dst)
}

// failFetcher refuses everything.
type failFetcher struct{}

func (failFetcher) FetchTfile(peer, dst string) error { return errors.New("down") }
func (failFetcher) FetchBlock(peer string, bnum uint64, dst string) error {
	return errors.New("down")
}

// newChainFromGenesis builds a chain whose state derives from a genesis
// trailer exactly the way ResetChain derives it, with the genesis
// archived as a neo-genesis snapshot of the given ledger. Every chain
// built from the same inputs is byte-for-byte identical, so test peers
// share history deterministically.
func newChainFromGenesis(t *testing.T, params *chaincfg.Params,
	entries []wire.LedgerEntry, fetcher Fetcher) *Chain {
	t.Helper()
	dir := t.TempDir()

	sorted := append([]wire.LedgerEntry{}, entries...)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Addr[:], sorted[j].Addr[:]) < 0
	})

	g := genesisTrailer()

	// Ledger file.
	var lbuf bytes.Buffer
	for i := range sorted {
		if err := sorted[i].Serialize(&lbuf); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "ledger.dat"), lbuf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	// Trailer file anchored at genesis.
	var tbuf bytes.Buffer
	g.Serialize(&tbuf)
	if err := os.WriteFile(filepath.Join(dir, "tfile.dat"), tbuf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	// Genesis archived as a neo-genesis snapshot.
	if err := os.MkdirAll(filepath.Join(dir, "bc"), 0700); err != nil {
		t.Fatal(err)
	}
	var ngbuf bytes.Buffer
	ngh := wire.NgHeader{
		Hdrlen: wire.NgHeaderSize,
		Lbytes: uint64(len(sorted)) * wire.LedgerEntrySize,
	}
	ngh.Serialize(&ngbuf)
	ngbuf.Write(lbuf.Bytes())
	g.Serialize(&ngbuf)
	if err := os.WriteFile(filepath.Join(dir, "bc", bcName(0)),
		ngbuf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	state := State{
		Cblocknum:  0,
		Cblockhash: g.Bhash,
		Prevhash:   g.Phash,
		Mfee:       params.MinFee,
		Difficulty: NextDifficulty(&g, params),
		Time0:      g.Stime,
	}
	if err := WriteState(filepath.Join(dir, "global.dat"), &state); err != nil {
		t.Fatal(err)
	}

	c, err := New(&Config{
		Params:     params,
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

// applyTxBlock builds, validates and applies a block holding the given
// signed transactions.
func applyTxBlock(t *testing.T, c *Chain, txs []wire.Tx) {
	t.Helper()
	path := buildBlock(t, c, txs, untagged(0x40), nil)
	if err := c.Update(path, ""); err != nil {
		t.Fatalf("block %d update: %v", c.State().Cblocknum+1, err)
	}
}

// applyPseudo builds and applies a pseudoblock.
func applyPseudo(t *testing.T, c *Chain) {
	t.Helper()
	path := filepath.Join(c.dataDir, "pseudo.tmp")
	buildPseudoFile(t, c, path)
	if err := c.Update(path, ""); err != nil {
		t.Fatalf("pseudoblock update: %v", err)
	}
}

// fundTx builds and signs a standard spend of the kit's whole balance.
func fundTx(kit *addrKit, balance uint64, dstFill byte) wire.Tx {
	tx := wire.Tx{
		SrcAddr:     kit.addr,
		DstAddr:     untagged(dstFill),
		ChgAddr:     untagged(dstFill + 1),
		SendTotal:   balance / 2,
		TxFee:       501,
		ChangeTotal: balance - balance/2 - 501,
	}
	kit.sign(&tx, false)
	return tx
}

// TestCatchup builds a three-block chain on a "peer", then catches a
// fresh chain up from it over two parallel workers and checks the
// resulting ledgers are byte-identical.
func TestCatchup(t *testing.T) {
	params := &chaincfg.MainnetParams
	a := genAddrKit(3, "")
	entries := []wire.LedgerEntry{{Addr: a.addr, Balance: 10000}}

	peer := newChainFromGenesis(t, params, entries, nil)
	applyTxBlock(t, peer, []wire.Tx{fundTx(a, 10000, 0x20)})
	applyPseudo(t, peer)
	applyPseudo(t, peer)

	fetcher := &dirFetcher{dir: filepath.Join(peer.dataDir, "bc")}
	c := newChainFromGenesis(t, params, entries, fetcher)
	if err := c.Catchup([]string{"p1", "p2"}, 3); err != nil {
		t.Fatalf("Catchup: %v", err)
	}

	if got := c.State().Cblocknum; got != 3 {
		t.Fatalf("tip after catchup: got %d, want 3", got)
	}
	if c.State().Cblockhash != peer.State().Cblockhash {
		t.Fatal("catchup tip hash differs from peer")
	}
	ourLedger, _ := os.ReadFile(c.path("ledger.dat"))
	peerLedger, _ := os.ReadFile(peer.path("ledger.dat"))
	if !bytes.Equal(ourLedger, peerLedger) {
		t.Fatal("catchup ledger differs from peer")
	}
}

// TestSyncup merges a heavier divergent chain: both sides share block 1,
// we bridged block 2 while the peer mined a real block 2 and bridged
// block 3. After syncup our state must equal a deterministic replay of
// the peer's chain.
func TestSyncup(t *testing.T) {
	params := &chaincfg.MainnetParams
	a := genAddrKit(3, "")
	b := genAddrKit(7, "")
	entries := []wire.LedgerEntry{
		{Addr: a.addr, Balance: 10000},
		{Addr: b.addr, Balance: 8000},
	}

	// The peer's side: shared block 1, then a spend and a bridge.
	peer := newChainFromGenesis(t, params, entries, nil)
	applyTxBlock(t, peer, []wire.Tx{fundTx(a, 10000, 0x20)})
	applyTxBlock(t, peer, []wire.Tx{fundTx(b, 8000, 0x60)})
	applyPseudo(t, peer)

	// Our side: the same block 1, then a bridge.
	ours := newChainFromGenesis(t, params, entries,
		&dirFetcher{dir: filepath.Join(peer.dataDir, "bc")})
	applyTxBlock(t, ours, []wire.Tx{fundTx(a, 10000, 0x20)})
	applyPseudo(t, ours)

	if ours.State().Cblockhash == peer.State().Cblockhash {
		t.Fatal("test chains did not diverge")
	}

	if err := ours.Syncup(2, 3, "peer"); err != nil {
		t.Fatalf("Syncup: %v", err)
	}

	if got := ours.State().Cblocknum; got != 3 {
		t.Fatalf("tip after syncup: got %d, want 3", got)
	}
	if ours.State().Cblockhash != peer.State().Cblockhash {
		t.Fatal("syncup tip hash differs from peer")
	}
	ourLedger, _ := os.ReadFile(ours.path("ledger.dat"))
	peerLedger, _ := os.ReadFile(peer.path("ledger.dat"))
	if !bytes.Equal(ourLedger, peerLedger) {
		t.Fatal("syncup ledger differs from peer replay")
	}

	// The split backup is cleaned down to nothing on success.
	leftovers, err := os.ReadDir(ours.path("split"))
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("split directory holds %d leftover files", len(leftovers))
	}
}

// TestSyncupRestoresOnFailure checks a failed merge puts everything
// back: state, ledger and archive.
func TestSyncupRestoresOnFailure(t *testing.T) {
	params := chaincfg.MainnetParams
	params.FetchRetryLimit = 1
	a := genAddrKit(3, "")
	entries := []wire.LedgerEntry{{Addr: a.addr, Balance: 10000}}

	c := newChainFromGenesis(t, &params, entries, failFetcher{})
	applyTxBlock(t, c, []wire.Tx{fundTx(a, 10000, 0x20)})
	applyPseudo(t, c)

	stateBefore := c.State()
	ledgerBefore, _ := os.ReadFile(c.path("ledger.dat"))

	if err := c.Syncup(2, 3, "peer"); err == nil {
		t.Fatal("syncup against a dead peer succeeded")
	}

	if c.State() != stateBefore {
		t.Fatal("failed syncup did not restore chain state")
	}
	ledgerAfter, _ := os.ReadFile(c.path("ledger.dat"))
	if !bytes.Equal(ledgerBefore, ledgerAfter) {
		t.Fatal("failed syncup did not restore the ledger")
	}
	if _, err := os.Stat(c.bcPath(2)); err != nil {
		t.Fatal("failed syncup did not restore the archive")
	}
}
