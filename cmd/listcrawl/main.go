package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/use-agent/listcrawl/config"
)

func main() {
	app := &cli.App{
		Name:  "listcrawl",
		Usage: "crawl a paginated product listing and export the extracted records",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Usage: "json or text"},
			&cli.StringFlag{Name: "target", Aliases: []string{"t"}, Usage: "YAML target file"},
			&cli.StringSliceFlag{Name: "engines", Usage: "fetch engines in escalation order (http, rod)"},
		},
		Commands: []*cli.Command{
			crawlCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("listcrawl failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment, then the target file, then flags.
// Later sources win.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Load()

	if v := c.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := c.String("log-format"); v != "" {
		cfg.Log.Format = v
	}
	initLogger(cfg.Log)

	if v := c.String("target"); v != "" {
		cfg.Crawl.TargetFile = v
	}
	if err := cfg.LoadTarget(); err != nil {
		return nil, err
	}
	if v := c.StringSlice("engines"); len(v) > 0 {
		cfg.Engine.Engines = v
	}
	return cfg, nil
}

// parseLevel maps a level name to a slog.Level; unknown names are info.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
