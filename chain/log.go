// Copyright (c) 2013-2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"github.com/MochiMore/mochimo/logger"
	"github.com/MochiMore/mochimo/util/panics"
)

var log, _ = logger.Get(logger.SubsystemTags.CHAN)
var syncLog, _ = logger.Get(logger.SubsystemTags.SYNC)
var spawn = panics.GoroutineWrapperFunc(syncLog)
