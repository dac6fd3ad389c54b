package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetenvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "")
	assert.Equal(t, time.Minute, getenvDuration("TEST_DURATION", time.Minute))

	t.Setenv("TEST_DURATION", "2m")
	assert.Equal(t, 2*time.Minute, getenvDuration("TEST_DURATION", time.Minute))

	t.Setenv("TEST_DURATION", "0")
	assert.Equal(t, time.Duration(0), getenvDuration("TEST_DURATION", time.Minute))

	t.Setenv("TEST_DURATION", "-5s")
	assert.Equal(t, time.Minute, getenvDuration("TEST_DURATION", time.Minute))

	t.Setenv("TEST_DURATION", "nonsense")
	assert.Equal(t, time.Minute, getenvDuration("TEST_DURATION", time.Minute))
}

func TestLoadMonitorIntervalZeroDisablesLoop(t *testing.T) {
	t.Setenv("MONITOR_INTERVAL", "0")
	cfg := Load()
	assert.Equal(t, time.Duration(0), cfg.MonitorInterval)
}
