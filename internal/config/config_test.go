package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"glkdc.dev/glkdcd/internal/domains/group/keyepoch"
)

func TestDefaultMatchesRotationPolicyDefaults(t *testing.T) {
	cfg := Default()
	require.Equal(t, "127.0.0.1:8787", cfg.ListenAddr)
	require.Equal(t, time.Minute, cfg.KeyCache.TTL)
	require.Equal(t, "mock", cfg.PubSub.Transport)
	require.Equal(t, keyepoch.DefaultPolicy(), cfg.Policy())
}

func TestLoadWithMissingFileFallsBackToDefaults(t *testing.T) {
	cfg := Load("/nonexistent/path/config.yaml")
	require.Equal(t, Default().ListenAddr, cfg.ListenAddr)
}

func TestEnvOverridesApplyOnTopOfDefaults(t *testing.T) {
	t.Setenv("GLKDC_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("GLKDC_ROTATION_POWER_MIN", "10")
	t.Setenv("GLKDC_PRIVILEGED_PRINCIPALS", "admin1,admin2")
	t.Setenv("GLKDC_PUBSUB_TRANSPORT", "go-waku")

	cfg := Load("")
	require.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	require.Equal(t, 10, cfg.Rotation.PowerMin)
	require.Equal(t, "go-waku", cfg.PubSub.Transport)
	require.ElementsMatch(t, []string{"admin1", "admin2"}, cfg.Privileged)
}

func TestPrivilegedSetBuildsLookupMap(t *testing.T) {
	cfg := Config{Privileged: []string{"a", "b"}}
	set := cfg.PrivilegedSet()
	_, aok := set["a"]
	_, bok := set["b"]
	_, cok := set["c"]
	require.True(t, aok)
	require.True(t, bok)
	require.False(t, cok)
}

func TestInvalidEnvIntFallsBackToPreviousValue(t *testing.T) {
	t.Setenv("GLKDC_ROTATION_POWER_MIN", "not-a-number")
	cfg := Load("")
	require.Equal(t, Default().Rotation.PowerMin, cfg.Rotation.PowerMin)
}
