package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/use-agent/listcrawl/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCheckEngines(t *testing.T) {
	tests := []struct {
		names   []string
		wantErr bool
	}{
		{[]string{"rod"}, false},
		{[]string{"http", "rod"}, false},
		{nil, true},
		{[]string{"rod-stealth"}, true},
		{[]string{"http", "http"}, true},
	}
	for _, tt := range tests {
		if err := checkEngines(tt.names); (err != nil) != tt.wantErr {
			t.Errorf("checkEngines(%v) err = %v, wantErr %v", tt.names, err, tt.wantErr)
		}
	}
}

// runWithFlags runs a copy of the crawl command whose action only
// resolves configuration.
func runWithFlags(t *testing.T, args ...string) *config.Config {
	t.Helper()
	var got *config.Config

	cmd := crawlCommand()
	cmd.Action = func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		applyCrawlFlags(c, cfg)
		got = cfg
		return nil
	}
	app := &cli.App{
		Name: "listcrawl",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level"},
			&cli.StringFlag{Name: "log-format"},
			&cli.StringFlag{Name: "target"},
			&cli.StringSliceFlag{Name: "engines"},
		},
		Commands: []*cli.Command{cmd},
	}
	if err := app.Run(append([]string{"listcrawl"}, args...)); err != nil {
		t.Fatalf("run: %v", err)
	}
	return got
}

func TestCrawlFlags_Precedence(t *testing.T) {
	t.Setenv("LISTCRAWL_MAX_PAGES", "7")

	dir := t.TempDir()
	target := filepath.Join(dir, "target.yaml")
	yaml := "base_url: https://file.test/lamps\ncss_selector: .from-file\nmax_pages: 9\n"
	if err := os.WriteFile(target, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := runWithFlags(t,
		"--log-level", "error",
		"--target", target,
		"--engines", "http",
		"crawl",
		"--selector", ".from-flag",
		"--max-empty", "0",
		"-o", filepath.Join(dir, "out.json"),
	)

	if cfg.Crawl.BaseURL != "https://file.test/lamps" {
		t.Errorf("base url = %q (file should override env)", cfg.Crawl.BaseURL)
	}
	if cfg.Crawl.Selector != ".from-flag" {
		t.Errorf("selector = %q (flag should override file)", cfg.Crawl.Selector)
	}
	if cfg.Crawl.MaxPages != 9 {
		t.Errorf("max pages = %d, want 9", cfg.Crawl.MaxPages)
	}
	if cfg.Crawl.MaxEmptyPages != 0 {
		t.Errorf("max empty = %d, want 0", cfg.Crawl.MaxEmptyPages)
	}
	if !reflect.DeepEqual(cfg.Engine.Engines, []string{"http"}) {
		t.Errorf("engines = %v", cfg.Engine.Engines)
	}
	if filepath.Base(cfg.Export.Output) != "out.json" {
		t.Errorf("output = %q", cfg.Export.Output)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}
