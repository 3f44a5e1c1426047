package timezone

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
)

func TestForCountry(t *testing.T) {
	assert.Equal(t, "Europe/Bucharest", ForCountry("RO"))
	assert.Equal(t, "Europe/Vilnius", ForCountry(" lt "))
	assert.Equal(t, Default, ForCountry(""))
	assert.Equal(t, Default, ForCountry("ZZ"))
}

func TestZonesLoad(t *testing.T) {
	for code, tz := range byCountry {
		_, err := time.LoadLocation(tz)
		assert.NoError(t, err, code)
	}
}
