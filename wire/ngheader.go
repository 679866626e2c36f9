// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/MochiMore/mochimo/chaincfg"
)

// NgHeaderSize is the serialized size of a neo-genesis block header.
const NgHeaderSize = chaincfg.NgHeaderLen

// NgHeader is the header of a neo-genesis block: a checkpoint block at
// every 256th block number that embeds a full ledger snapshot between its
// header and trailer.
type NgHeader struct {
	// Hdrlen is the header length field; it must equal NgHeaderSize.
	Hdrlen uint32

	// Lbytes is the byte length of the embedded ledger snapshot.
	Lbytes uint64
}

// Deserialize decodes a neo-genesis header from r into the receiver.
func (h *NgHeader) Deserialize(r io.Reader) error {
	return readElements(r, &h.Hdrlen, &h.Lbytes)
}

// Serialize encodes the neo-genesis header to w in its on-disk form.
func (h *NgHeader) Serialize(w io.Writer) error {
	return writeElements(w, h.Hdrlen, h.Lbytes)
}
