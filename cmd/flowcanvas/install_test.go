package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o755,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestExtractTarGz(t *testing.T) {
	archive := tarGz(t, map[string]string{
		"README.md":                         "docs",
		"mermaid-ascii_1.1.0/mermaid-ascii": "#!/bin/sh\necho hi\n",
	})
	dir := t.TempDir()

	require.NoError(t, extractTarGz(bytes.NewReader(archive), dir, "mermaid-ascii"))

	data, err := os.ReadFile(filepath.Join(dir, "mermaid-ascii"))
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho hi\n", string(data))
	_, err = os.Stat(filepath.Join(dir, "README.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractTarGz_Missing(t *testing.T) {
	archive := tarGz(t, map[string]string{"other": "x"})
	err := extractTarGz(bytes.NewReader(archive), t.TempDir(), "mermaid-ascii")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in archive")
}

func TestExtractTarGz_NotGzip(t *testing.T) {
	err := extractTarGz(bytes.NewReader([]byte("plain")), t.TempDir(), "mermaid-ascii")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gzip")
}

func TestMermaidASCIIAssetName(t *testing.T) {
	tests := []struct {
		goos, goarch string
		want         string
		wantErr      bool
	}{
		{"darwin", "arm64", "mermaid-ascii_Darwin_arm64.tar.gz", false},
		{"linux", "amd64", "mermaid-ascii_Linux_x86_64.tar.gz", false},
		{"windows", "amd64", "", true},
		{"linux", "riscv64", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.goarch, func(t *testing.T) {
			got, err := mermaidASCIIAssetName(tt.goos, tt.goarch)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, mermaidASCIIChecksums, got)
		})
	}
}

func TestWriteSettingsRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := defaultConfig()
	cfg.ListenAddr = ":9999"
	cfg.Store = "memory"
	cfg.Layout.Gap = 40

	for _, asTOML := range []bool{false, true} {
		dir := t.TempDir()
		path, err := writeSettings(dir, cfg, asTOML)
		require.NoError(t, err)

		got, err := loadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, cfg, got)
	}
}
