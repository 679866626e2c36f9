package pow

import (
	"testing"

	"github.com/MochiMore/mochimo/wire"
)

// TestCheckDifficulty exercises the leading-zero-bit count at byte and
// sub-byte boundaries.
func TestCheckDifficulty(t *testing.T) {
	tests := []struct {
		name       string
		hash       []byte
		difficulty uint32
		want       bool
	}{
		{"zero difficulty always passes", []byte{0xff, 0xff}, 0, true},
		{"one byte of zeros", []byte{0x00, 0xff}, 8, true},
		{"one byte of zeros fails nine bits", []byte{0x00, 0xff}, 9, false},
		{"sub-byte pass", []byte{0x1f, 0x00}, 3, true},
		{"sub-byte fail", []byte{0x1f, 0x00}, 4, false},
		{"difficulty beyond hash", []byte{0x00}, 9, false},
	}
	for _, test := range tests {
		if got := checkDifficulty(test.hash, test.difficulty); got != test.want {
			t.Errorf("%s: got %v, want %v", test.name, got, test.want)
		}
	}
}

// TestTrigg checks the legacy predicate is deterministic and gated by
// difficulty.
func TestTrigg(t *testing.T) {
	bt := &wire.BlockTrailer{Bnum: 12345, Difficulty: 0}
	copy(bt.Mroot[:], []byte("merkle root bytes for trigg test"))
	copy(bt.Nonce[:], []byte("nonce bytes for the trigg test!!"))

	if !Trigg(bt) {
		t.Fatal("difficulty zero must always pass")
	}
	if Trigg(bt) != Trigg(bt) {
		t.Fatal("predicate is not deterministic")
	}

	// An impossible difficulty cannot pass a fixed trailer.
	bt.Difficulty = 255
	if Trigg(bt) {
		t.Fatal("256-bit difficulty passed")
	}
}

// TestPeach checks the memory-hard predicate is deterministic and gated by
// difficulty.
func TestPeach(t *testing.T) {
	bt := &wire.BlockTrailer{Bnum: 97025, Difficulty: 0, Stime: 1000}
	copy(bt.Phash[:], []byte("previous hash bytes for peach!!!"))
	copy(bt.Nonce[:], []byte("nonce bytes for the peach test!!"))

	if !Peach(bt) {
		t.Fatal("difficulty zero must always pass")
	}
	if Peach(bt) != Peach(bt) {
		t.Fatal("predicate is not deterministic")
	}

	bt.Difficulty = 255
	if Peach(bt) {
		t.Fatal("256-bit difficulty passed")
	}
}
