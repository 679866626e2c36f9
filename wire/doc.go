// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package wire implements the fixed-size binary records the node reads and
writes on disk and exchanges with peers.

Every record is packed little-endian with no padding, and the serialized
byte layout is the consensus contract: block hashes and merkle roots are
computed over these exact bytes. The package therefore never uses
reflection-based encoding; each record serializes its fields explicitly
through the binaryserializer primitives.
*/
package wire
