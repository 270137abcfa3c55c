// Command doughub-preflight runs the environment checks standalone.
// Exit codes: 0 clean, 1 fatal, 2 warnings only.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	_ "modernc.org/sqlite"

	"github.com/Dogebooch/doughub/config"
	"github.com/Dogebooch/doughub/preflight"
)

func main() {
	configPath := flag.String("config", "doughub.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	report := preflight.New(cfg).Run(context.Background())
	os.Stdout.WriteString(report.Summary())
	os.Exit(report.ExitCode())
}
