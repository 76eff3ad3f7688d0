package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/willibrandon/CallSiteGo/internal/logger"
	"github.com/willibrandon/CallSiteGo/pkg/callstack"
	"github.com/willibrandon/CallSiteGo/pkg/version"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	showVersion := flag.Bool("version", false, "print version and exit")
	asJSON := flag.Bool("json", false, "print resolved snapshots as JSON")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetVersionInfo())
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Init(cfg.Log.Debug, cfg.Log.NoColor)

	// A small nested call chain so the demo trace has some depth.
	outer(cfg, *asJSON)

	log.Info("aggregate capture")
	if err := callstack.All(
		func() error { return aggregateTask(0) },
		func() error { return aggregateTask(1) },
	); err != nil {
		log.Error("aggregate failed", "err", err)
		os.Exit(1)
	}
}

func outer(cfg *Config, asJSON bool) { middle(cfg, asJSON) }

func middle(cfg *Config, asJSON bool) { inner(cfg, asJSON) }

func inner(cfg *Config, asJSON bool) {
	frames := callstack.Frames()
	log.Info("captured call stack", "frames", len(frames))
	for _, f := range frames {
		if skipFrame(cfg, f) {
			log.Debug("skipping frame", "pkg", f.PackagePath())
			continue
		}
		fmt.Println("  " + f.Render())
		if cfg.Capture.ContextLines > 0 {
			printContext(f, cfg.Capture.ContextLines)
		}
	}

	if asJSON {
		snaps, err := callstack.Resolved()
		if err != nil {
			log.Error("resolving snapshots", "err", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snaps); err != nil {
			log.Error("encoding snapshots", "err", err)
			os.Exit(1)
		}
	}
}

func skipFrame(cfg *Config, f *callstack.Frame) bool {
	for _, prefix := range cfg.Capture.SkipPrefixes {
		if strings.HasPrefix(f.PackagePath(), prefix) {
			return true
		}
	}
	return false
}

func printContext(f *callstack.Frame, n int) {
	ctx, err := f.SourceContext(n)
	if err != nil {
		log.Debug("no source context", "frame", f.Render(), "err", err)
		return
	}
	for _, line := range ctx.PreContext {
		fmt.Println("      " + line)
	}
	fmt.Println("    > " + ctx.ContextLine)
	for _, line := range ctx.PostContext {
		fmt.Println("      " + line)
	}
}

func aggregateTask(i int) error {
	for _, f := range callstack.Frames() {
		if f.IsPromiseAll() {
			fmt.Printf("  task %d: %s [aggregate index %d]\n", i, f.Render(), f.PromiseIndex())
			break
		}
	}
	return nil
}
