package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/STRATINT/feedpoller/internal/config"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version returned error: %v", err)
	}
	if !strings.HasPrefix(out.String(), "feedpoller dev") {
		t.Errorf("unexpected version output %q", out.String())
	}
}

func TestSeedURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeds.yaml")
	if err := os.WriteFile(path, []byte("feeds:\n  - https://example.org/atom.xml\n"), 0o600); err != nil {
		t.Fatalf("failed to write seed file: %v", err)
	}

	t.Run("defaults", func(t *testing.T) {
		urls, err := seedURLs(nil, "")
		if err != nil {
			t.Fatalf("seedURLs returned error: %v", err)
		}
		if len(urls) != len(config.DefaultSeeds) {
			t.Errorf("expected default seeds, got %v", urls)
		}
	})

	t.Run("args and file", func(t *testing.T) {
		urls, err := seedURLs([]string{"https://example.com/rss"}, path)
		if err != nil {
			t.Fatalf("seedURLs returned error: %v", err)
		}
		want := []string{"https://example.com/rss", "https://example.org/atom.xml"}
		if strings.Join(urls, ",") != strings.Join(want, ",") {
			t.Errorf("got %v, want %v", urls, want)
		}
	})

	t.Run("invalid arg", func(t *testing.T) {
		if _, err := seedURLs([]string{"not-a-url"}, ""); err == nil {
			t.Error("expected invalid URL to be rejected")
		}
	})
}

func TestSeedRejectsInvalidURLBeforeConnecting(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("INSTANCE_CONNECTION_NAME", "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"seed", "ftp://example.com/feed"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "invalid feed URL") {
		t.Fatalf("expected invalid feed URL error, got %v", err)
	}
}

func TestRootCommandListsSubcommands(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--help"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("help returned error: %v", err)
	}
	for _, name := range []string{"run", "migrate", "seed", "check", "version"} {
		if !strings.Contains(out.String(), "  "+name+" ") {
			t.Errorf("help output missing %q command\n%s", name, out.String())
		}
	}
}
