package moderation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpiry(t *testing.T) {
	now := time.Now()

	expiry := ParseExpiry("5m", now)
	require.NotNil(t, expiry)
	assert.WithinDuration(t, now.Add(5*time.Minute), *expiry, time.Second)

	expiry = ParseExpiry("2h", now)
	require.NotNil(t, expiry)
	assert.WithinDuration(t, now.Add(2*time.Hour), *expiry, time.Second)

	expiry = ParseExpiry("1d", now)
	require.NotNil(t, expiry)
	assert.WithinDuration(t, now.AddDate(0, 0, 1), *expiry, time.Second)
}

func TestParseExpiryFallsBackToPermanent(t *testing.T) {
	now := time.Now()
	// unparseable tokens mean "no expiry", not an error
	assert.Nil(t, ParseExpiry("garbage", now))
	assert.Nil(t, ParseExpiry("5w", now))
	assert.Nil(t, ParseExpiry("m5", now))
	assert.Nil(t, ParseExpiry("", now))
	assert.Nil(t, ParseExpiry("5 m", now))
}
