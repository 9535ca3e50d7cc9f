package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeGranularity(t *testing.T) {
	assert.Equal(t, "M1", NormalizeGranularity(" m1 "))
	assert.Equal(t, "H4", NormalizeGranularity("h4"))
}

func TestValidGranularity(t *testing.T) {
	for _, g := range []string{"S5", "M1", "m15", "H1", "H12", "D", "W", "M"} {
		assert.True(t, ValidGranularity(g), g)
	}
	for _, g := range []string{"", "M3", "H5", "1m", "minute"} {
		assert.False(t, ValidGranularity(g), g)
	}
}

func TestGranularityDuration(t *testing.T) {
	d, ok := GranularityDuration("h4")
	assert.True(t, ok)
	assert.Equal(t, 4*time.Hour, d)

	_, ok = GranularityDuration("H5")
	assert.False(t, ok)
}
