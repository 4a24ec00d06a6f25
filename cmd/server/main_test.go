package main

import (
	"testing"

	"github.com/leca/enhance-studio/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFlags(t *testing.T) {
	cfg := &config.Config{
		ListenAddr: ":8080",
		ServiceURL: "http://localhost:8013/api",
		LogLevel:   "info",
	}

	require.NoError(t, rootCmd.Flags().Parse([]string{"--addr", ":9090", "--max-upload", "1024"}))
	applyFlags(rootCmd, cfg)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, int64(1024), cfg.MaxUploadBytes)
	assert.Equal(t, "http://localhost:8013/api", cfg.ServiceURL, "unset flags keep the environment value")
	assert.Equal(t, "info", cfg.LogLevel)
}
