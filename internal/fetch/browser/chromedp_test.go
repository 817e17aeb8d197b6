package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithDefaults(t *testing.T) {
	t.Parallel()

	cfg := withDefaults(Config{})
	assert.Equal(t, defaultPageTimeout, cfg.PageTimeout)
	assert.Equal(t, defaultSettle, cfg.Settle)
	assert.Equal(t, defaultScrollPause, cfg.ScrollPause)
	assert.Equal(t, defaultScrollMax, cfg.MaxScrollRounds)

	cfg = withDefaults(Config{PageTimeout: time.Second, MaxScrollRounds: 3})
	assert.Equal(t, time.Second, cfg.PageTimeout)
	assert.Equal(t, 3, cfg.MaxScrollRounds)
}

func TestAllocatorOptionsGrowWithProfileSettings(t *testing.T) {
	t.Parallel()

	base := allocatorOptions(Config{Headless: true})
	full := allocatorOptions(Config{
		Headless:    true,
		UserAgent:   "ua",
		UserDataDir: "/tmp/profile",
		Profile:     "Default",
	})
	assert.Len(t, full, len(base)+3)

	headful := allocatorOptions(Config{})
	assert.Len(t, headful, len(base)+1)
}

func TestPageIndicators(t *testing.T) {
	t.Parallel()

	assert.True(t, isLoggedIn("<a>Sign Out</a>"))
	assert.True(t, isLoggedIn("<h1>Account settings</h1>"))
	assert.False(t, isLoggedIn("<form>Sign in</form>"))

	assert.True(t, isChallenge("<div class=g-recaptcha>"))
	assert.True(t, isChallenge("Please verify your identity"))
	assert.False(t, isChallenge("<p>Welcome back</p>"))
}
