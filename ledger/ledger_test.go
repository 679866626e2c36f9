package ledger

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/MochiMore/mochimo/chaincfg"
	"github.com/MochiMore/mochimo/wire"
)

// mkAddr builds a test address from a fill byte and an optional tag.
func mkAddr(fill byte, tag string) wire.Address {
	var a wire.Address
	for i := range a {
		a[i] = fill
	}
	// Clear the tag region unless one is given; 0x00 marks untagged.
	for i := chaincfg.TagOffset; i < chaincfg.AddrLen; i++ {
		a[i] = 0
	}
	copy(a[chaincfg.TagOffset:], tag)
	return a
}

// writeLedger writes entries to path in sorted order.
func writeLedger(t *testing.T, path string, entries []wire.LedgerEntry) {
	t.Helper()
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Addr[:], entries[j].Addr[:]) < 0
	})
	var buf bytes.Buffer
	for i := range entries {
		if err := entries[i].Serialize(&buf); err != nil {
			t.Fatalf("serialize entry: %v", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write ledger: %v", err)
	}
}

func TestOpenRejectsBadSizes(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "empty.dat")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); !IsErrorCode(err, ErrBadFormat) {
		t.Fatalf("empty ledger: got %v, want ErrBadFormat", err)
	}

	path = filepath.Join(dir, "ragged.dat")
	if err := os.WriteFile(path, make([]byte, wire.LedgerEntrySize+1), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); !IsErrorCode(err, ErrBadFormat) {
		t.Fatalf("ragged ledger: got %v, want ErrBadFormat", err)
	}
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.dat")

	entries := []wire.LedgerEntry{
		{Addr: mkAddr(0x10, ""), Balance: 1000},
		{Addr: mkAddr(0x20, "tag-number-2"), Balance: 2000},
		{Addr: mkAddr(0x30, ""), Balance: 3000},
		{Addr: mkAddr(0x40, "tag-number-4"), Balance: 4000},
		{Addr: mkAddr(0x50, ""), Balance: 5000},
	}
	writeLedger(t, path, entries)

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if s.N() != 5 {
		t.Fatalf("N: got %d, want 5", s.N())
	}

	for _, want := range entries {
		le, found, err := s.Find(want.Addr[:], chaincfg.AddrLen)
		if err != nil || !found {
			t.Fatalf("Find(%x...): found=%v err=%v", want.Addr[0], found, err)
		}
		if le.Balance != want.Balance {
			t.Fatalf("Find balance: got %d, want %d", le.Balance, want.Balance)
		}
	}

	missing := mkAddr(0x60, "")
	_, found, err := s.Find(missing[:], chaincfg.AddrLen)
	if err != nil {
		t.Fatalf("Find missing: %v", err)
	}
	if found {
		t.Fatal("found an address the ledger does not hold")
	}

	// Prefix lookups match on the leading bytes only.
	prefix := mkAddr(0x30, "ignored-tail")
	if _, found, _ = s.Find(prefix[:], 16); !found {
		t.Fatal("prefix lookup missed")
	}
}

func TestFindTag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.dat")
	writeLedger(t, path, []wire.LedgerEntry{
		{Addr: mkAddr(0x10, ""), Balance: 1000},
		{Addr: mkAddr(0x20, "tag-number-2"), Balance: 2000},
		{Addr: mkAddr(0x40, "tag-number-4"), Balance: 4000},
	})

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	le, found, err := s.FindTag([]byte("tag-number-4"))
	if err != nil || !found {
		t.Fatalf("FindTag: found=%v err=%v", found, err)
	}
	if le.Balance != 4000 {
		t.Fatalf("FindTag balance: got %d, want 4000", le.Balance)
	}

	if _, found, _ := s.FindTag([]byte("tag-missing!")); found {
		t.Fatal("resolved a tag the ledger does not hold")
	}

	if exists, _ := s.TagExists([]byte("tag-number-2")); !exists {
		t.Fatal("TagExists missed a live tag")
	}
}

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	ngPath := filepath.Join(dir, "ngblock.dat")
	outPath := filepath.Join(dir, "ledger.dat")

	entries := []wire.LedgerEntry{
		{Addr: mkAddr(0x11, ""), Balance: 1000},
		{Addr: mkAddr(0x22, ""), Balance: 2000},
		{Addr: mkAddr(0x33, ""), Balance: 3000},
	}
	writeNg := func(entries []wire.LedgerEntry) {
		var buf bytes.Buffer
		ngh := wire.NgHeader{
			Hdrlen: wire.NgHeaderSize,
			Lbytes: uint64(len(entries)) * wire.LedgerEntrySize,
		}
		if err := ngh.Serialize(&buf); err != nil {
			t.Fatal(err)
		}
		for i := range entries {
			if err := entries[i].Serialize(&buf); err != nil {
				t.Fatal(err)
			}
		}
		// Trailer bytes follow in a real block; Extract must not read
		// past the snapshot.
		buf.Write(make([]byte, wire.BlockTrailerSize))
		if err := os.WriteFile(ngPath, buf.Bytes(), 0644); err != nil {
			t.Fatal(err)
		}
	}

	writeNg(entries)
	if err := Extract(ngPath, outPath); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	// Round trip: the extracted ledger holds exactly the snapshot.
	s, err := Open(outPath)
	if err != nil {
		t.Fatalf("Open extracted: %v", err)
	}
	defer s.Close()
	if s.N() != int64(len(entries)) {
		t.Fatalf("extracted %d entries, want %d", s.N(), len(entries))
	}
	for i, want := range entries {
		got, err := s.Entry(int64(i))
		if err != nil {
			t.Fatalf("Entry(%d): %v", i, err)
		}
		if *got != want {
			t.Fatalf("entry %d mismatch", i)
		}
	}

	// An unsorted snapshot is rejected.
	entries[0], entries[2] = entries[2], entries[0]
	writeNg(entries)
	if err := Extract(ngPath, outPath); !IsErrorCode(err, ErrBadSort) {
		t.Fatalf("unsorted snapshot: got %v, want ErrBadSort", err)
	}
}

func TestRenew(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.dat")
	writeLedger(t, path, []wire.LedgerEntry{
		{Addr: mkAddr(0x10, ""), Balance: 400},  // underflows, dropped
		{Addr: mkAddr(0x20, ""), Balance: 900},  // 400 left <= mfee, dropped
		{Addr: mkAddr(0x30, ""), Balance: 1000}, // exactly mfee after, dropped
		{Addr: mkAddr(0x40, ""), Balance: 2000}, // survives with 1500
	})

	if err := Renew(path, 500, 500); err != nil {
		t.Fatalf("Renew: %v", err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open renewed: %v", err)
	}
	defer s.Close()
	if s.N() != 1 {
		t.Fatalf("renewed ledger holds %d entries, want 1", s.N())
	}
	le, _ := s.Entry(0)
	if le.Balance != 1500 {
		t.Fatalf("renewed balance: got %d, want 1500", le.Balance)
	}

	// Zero sanctuary is a no-op even on a missing file.
	if err := Renew(filepath.Join(dir, "nope.dat"), 0, 500); err != nil {
		t.Fatalf("no-op Renew: %v", err)
	}
}
