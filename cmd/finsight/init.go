package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/finsight-ai/finsight/internal/defaults"
)

// runInit prepares a working directory: the data directory plus a
// starter config.yaml. An existing config is never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing Finsight workspace in %s\n", dir)

	dataDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dataDir, err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(configPath, defaults.ConfigYAML, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(w, "  wrote %s\n", configPath)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml to set your Anthropic and market data API keys.")
	return nil
}

// writeIfMissing writes content to path only if no file exists there,
// so init never clobbers user edits.
func writeIfMissing(path string, content []byte, mode os.FileMode) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, content, mode)
}
