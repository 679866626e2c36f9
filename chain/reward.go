// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

// Reward schedule constants. The emission runs in three historic epochs:
// a rising ramp to the first boundary, a steeper ramp to the midpoint,
// then a linear decay to the final boundary; blocks past it carry no
// reward. The exact
// values are consensus; a mismatched reward invalidates the block.
const (
	rewardT1 = 17185
	rewardT2 = 373761
	rewardT3 = 2097152

	rewardBase1  = 5000000000
	rewardBase2  = 5917392000
	rewardBase3  = 59523942000
	rewardDelta1 = 56000
	rewardDelta2 = 150000
	rewardDelta3 = 28488
)

// Reward returns the mining reward a block at the given number must
// claim. Block zero and blocks past the final boundary carry no reward.
func Reward(bnum uint64) uint64 {
	switch {
	case bnum == 0:
		return 0
	case bnum < rewardT1:
		return rewardBase1 + rewardDelta1*(bnum-1)
	case bnum <= rewardT2:
		return rewardBase2 + rewardDelta2*(bnum-rewardT1)
	case bnum <= rewardT3:
		decay := rewardDelta3 * (bnum - rewardT2)
		if decay > rewardBase3 {
			return 0
		}
		return rewardBase3 - decay
	default:
		return 0
	}
}
