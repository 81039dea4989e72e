package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadEnvWarnsWhenMissing(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	loadEnv(logger, filepath.Join(t.TempDir(), ".env"))
	if !strings.Contains(buf.String(), ".env file not found") {
		t.Errorf("log = %q, want a missing .env warning", buf.String())
	}
}

func TestLoadEnvReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("CHECKIN_CONSOLE_TEST_VALUE=door-2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("CHECKIN_CONSOLE_TEST_VALUE") })

	var buf bytes.Buffer
	loadEnv(slog.New(slog.NewTextHandler(&buf, nil)), path)
	if buf.Len() != 0 {
		t.Errorf("unexpected log output %q", buf.String())
	}
	if got := os.Getenv("CHECKIN_CONSOLE_TEST_VALUE"); got != "door-2" {
		t.Errorf("value = %q", got)
	}
}
