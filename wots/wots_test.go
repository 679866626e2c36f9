package wots

import (
	"bytes"
	"crypto/sha256"
	"testing"
)

// testAddr derives a deterministic hash-address word set.
func testAddr(seed byte) Addr {
	var b [32]byte
	for i := range b {
		b[i] = seed + byte(i)
	}
	return AddrFromBytes(b[:])
}

// TestSignVerify checks that a signature chains back to the public key
// for the message it was produced over, and fails for any other message.
func TestSignVerify(t *testing.T) {
	secretSeed := bytes.Repeat([]byte{0x37}, ParamsN)
	pubSeed := bytes.Repeat([]byte{0x8b}, ParamsN)
	addr := testAddr(5)

	msg := sha256.Sum256([]byte("one-time message"))
	pk := PkGen(secretSeed, pubSeed, addr)
	sig := Sign(msg[:], secretSeed, pubSeed, addr)

	got := PkFromSig(sig[:], msg[:], pubSeed, addr)
	if got != pk {
		t.Fatal("derived public key does not match generated public key")
	}

	// Any single-bit change to the message must break the chain match.
	bad := msg
	bad[0] ^= 0x01
	got = PkFromSig(sig[:], bad[:], pubSeed, addr)
	if got == pk {
		t.Fatal("signature verified against a different message")
	}

	// A corrupted signature element must break it too.
	sig[100] ^= 0x80
	got = PkFromSig(sig[:], msg[:], pubSeed, addr)
	if got == pk {
		t.Fatal("corrupted signature still verified")
	}
}

// TestVerifyBindsSeedAndAddr checks that verification is parameterized by
// both the public seed and the hash-address words.
func TestVerifyBindsSeedAndAddr(t *testing.T) {
	secretSeed := bytes.Repeat([]byte{0x01}, ParamsN)
	pubSeed := bytes.Repeat([]byte{0x02}, ParamsN)
	addr := testAddr(9)

	msg := sha256.Sum256([]byte("bind test"))
	pk := PkGen(secretSeed, pubSeed, addr)
	sig := Sign(msg[:], secretSeed, pubSeed, addr)

	otherSeed := bytes.Repeat([]byte{0x03}, ParamsN)
	if got := PkFromSig(sig[:], msg[:], otherSeed, addr); got == pk {
		t.Fatal("signature verified under a different public seed")
	}
	if got := PkFromSig(sig[:], msg[:], pubSeed, testAddr(10)); got == pk {
		t.Fatal("signature verified under different address words")
	}
}

// TestChainLengthsChecksum spot-checks the checksum digits: an all-zero
// message maximizes the checksum, an all-ones message minimizes it.
func TestChainLengthsChecksum(t *testing.T) {
	var zero [ParamsN]byte
	lengths := chainLengths(zero[:])
	// 64 digits of 0 give csum 64*15 = 960 = 0x3c0; shifted left by 4
	// bits the digits are 3, 12, 0.
	want := []uint8{3, 12, 0}
	for i, w := range want {
		if lengths[WotsLen1+i] != w {
			t.Fatalf("checksum digit %d: got %d, want %d",
				i, lengths[WotsLen1+i], w)
		}
	}

	ones := bytes.Repeat([]byte{0xff}, ParamsN)
	lengths = chainLengths(ones)
	for i := 0; i < WotsLen1; i++ {
		if lengths[i] != 15 {
			t.Fatalf("message digit %d: got %d, want 15", i, lengths[i])
		}
	}
	for i := WotsLen1; i < WotsLen; i++ {
		if lengths[i] != 0 {
			t.Fatalf("checksum digit %d: got %d, want 0", i-WotsLen1, lengths[i])
		}
	}
}
