// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

// Fetcher is the transport collaborator the sync engine downloads through.
// Implementations own peer sockets, framing and per-request timeouts; the
// engine only sees files landing at the destination paths it names. A
// failed fetch must leave no partial file at dst.
type Fetcher interface {
	// FetchTfile downloads the peer's full trailer file to dst.
	FetchTfile(peer string, dst string) error

	// FetchBlock downloads one block file by number to dst.
	FetchBlock(peer string, bnum uint64, dst string) error
}
