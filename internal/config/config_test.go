package config

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolvedExportDir_DefaultsToOSTempDir(t *testing.T) {
	var cfg Config
	require.Equal(t, os.TempDir(), cfg.ResolvedExportDir())
}

func TestResolvedExportDir_UsesConfiguredValue(t *testing.T) {
	cfg := Config{ExportDir: " /tmp/custom-dir "}
	require.Equal(t, "/tmp/custom-dir", cfg.ResolvedExportDir())
}

func TestContextRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	ctx := WithContext(context.Background(), &cfg)
	require.Same(t, &cfg, FromContext(ctx))
	require.Nil(t, FromContext(context.Background()))
}
