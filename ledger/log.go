// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"github.com/MochiMore/mochimo/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.LEDG)
