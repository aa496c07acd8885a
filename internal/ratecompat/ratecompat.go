// Package ratecompat decides whether a source port's rate may drive a sink
// port, per spec.md §4.2: predictable typing, no silent audio-rate loss,
// explicit conversions left to the user.
package ratecompat

import "github.com/schollz/orchestron/internal/types"

// Compatible reports whether a connection from a port at sourceRate into a
// sink declaring sinkRate (with additionally accepted rates in accepted) is
// legal.
func Compatible(sourceRate, sinkRate types.Rate, accepted []types.Rate) bool {
	if sourceRate == sinkRate {
		return true
	}
	if sourceRate == types.RateString || sourceRate == types.RateFtable ||
		sinkRate == types.RateString || sinkRate == types.RateFtable {
		return false
	}
	if sourceRate == types.RateInit && sinkRate == types.RateControl && len(accepted) == 0 {
		return true
	}
	for _, r := range accepted {
		if r == sourceRate {
			return true
		}
	}
	return false
}
