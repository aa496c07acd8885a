package ratecompat

import (
	"testing"

	"github.com/schollz/orchestron/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestExactMatchAlwaysCompatible(t *testing.T) {
	assert.True(t, Compatible(types.RateAudio, types.RateAudio, nil))
	assert.True(t, Compatible(types.RateString, types.RateString, nil))
}

func TestInitDrivesControlWithNoAcceptedSet(t *testing.T) {
	assert.True(t, Compatible(types.RateInit, types.RateControl, nil))
}

func TestInitDoesNotDriveControlWhenAcceptedSetExcludesIt(t *testing.T) {
	assert.False(t, Compatible(types.RateInit, types.RateControl, []types.Rate{types.RateAudio}))
}

func TestAcceptedRateSetAllowsPromotion(t *testing.T) {
	assert.True(t, Compatible(types.RateAudio, types.RateControl, []types.Rate{types.RateAudio}))
}

func TestUnacceptedRateRejected(t *testing.T) {
	assert.False(t, Compatible(types.RateControl, types.RateAudio, nil))
}

func TestStringAndFtableNeverPromote(t *testing.T) {
	assert.False(t, Compatible(types.RateString, types.RateControl, []types.Rate{types.RateString}))
	assert.False(t, Compatible(types.RateFtable, types.RateControl, []types.Rate{types.RateFtable}))
	assert.False(t, Compatible(types.RateControl, types.RateString, nil))
}
