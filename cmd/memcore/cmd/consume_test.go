package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumeCmd_BrokerUnavailable(t *testing.T) {
	// Given: a NATS URL nothing listens on
	setupTestEnv(t)
	t.Setenv("MEMCORE_NATS_URL", "nats://127.0.0.1:1")

	// When: starting the consumer
	_, _, err := runCommand(t, "consume")

	// Then: it fails up front instead of waiting for messages
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to NATS")
}

func TestConsumeCmd_RejectsArgs(t *testing.T) {
	setupTestEnv(t)

	_, _, err := runCommand(t, "consume", "extra")

	require.Error(t, err)
}
