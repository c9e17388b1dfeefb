/*
Command assetloader loads site assets through the engine and reports what came back.
*/
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spaghettifunk/assetloader/engine"
	"github.com/spaghettifunk/assetloader/engine/config"
	"github.com/spaghettifunk/assetloader/engine/core"
	flag "github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"
)

type cliFlags struct {
	configPath string
	source     string
	root       string
	origin     string
	workers    int
	list       bool
	site       bool
	verbose    bool
}

func parseFlags(args []string) (*cliFlags, []string, error) {
	f := &cliFlags{}
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.StringVarP(&f.configPath, "config", "c", "", "site configuration (TOML)")
	fs.StringVar(&f.source, "source", "", "asset source: file or http")
	fs.StringVar(&f.root, "root", "", "directory served as the site root (file source)")
	fs.StringVar(&f.origin, "origin", "", "scheme and host of the site (http source)")
	fs.IntVarP(&f.workers, "workers", "w", -1, "number of loader workers (0 = GOMAXPROCS)")
	fs.BoolVar(&f.list, "list", false, "list the assets found below the root")
	fs.BoolVar(&f.site, "site", false, "print the deployment settings and check the stylesheets")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] REF...\n", args[0])
		fs.PrintDefaults()
	}
	if err := fs.Parse(args[1:]); err != nil {
		return nil, nil, err
	}
	return f, fs.Args(), nil
}

func buildConfig(f *cliFlags) (config.SiteConfig, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if f.source != "" {
		cfg.Loader.Source = config.Source(f.source)
	}
	if f.root != "" {
		cfg.Loader.Root = f.root
	}
	if f.origin != "" {
		cfg.Loader.Origin = f.origin
	}
	if f.workers >= 0 {
		cfg.Loader.Workers = f.workers
	}
	if f.verbose {
		cfg.Loader.LogLevel = "debug"
	}
	return cfg, cfg.Validate()
}

func printResults(w io.Writer, results []engine.Result) int {
	failed := 0
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(tw, "%s\terror: %s\n", r.Reference, r.Err.Error())
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d bytes\t%s\n", r.Reference, r.Resource.Type, r.Resource.DataSize, r.Elapsed)
	}
	_ = tw.Flush()
	return failed
}

func printSite(w io.Writer, site engine.Site) {
	mode := "ssr"
	if site.SPA {
		mode = "spa"
	}
	missing := make(map[string]bool, len(site.MissingStylesheets))
	for _, css := range site.MissingStylesheets {
		missing[css] = true
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "mode\t%s\n", mode)
	fmt.Fprintf(tw, "base_url\t%s\n", site.BaseURL)
	fmt.Fprintf(tw, "assets\t%s\n", site.AssetsPrefix)
	for _, css := range site.Stylesheets {
		if missing[css] {
			fmt.Fprintf(tw, "css\t%s (missing)\n", css)
			continue
		}
		fmt.Fprintf(tw, "css\t%s\n", css)
	}
	_ = tw.Flush()
}

func run(args []string, stdout io.Writer) error {
	flags, refs, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := buildConfig(flags)
	if err != nil {
		return err
	}
	if !flags.list && !flags.site && len(refs) == 0 {
		return fmt.Errorf("no asset reference given")
	}

	e, err := engine.New(cfg, nil)
	if err != nil {
		return err
	}
	if err := e.Initialize(); err != nil {
		return err
	}
	defer e.Shutdown()

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	defer close(done)

	// start shutdown goroutine
	go func() {
		select {
		case <-sigCh:
			// capture sigterm and other system call here
			_ = e.Shutdown()
			os.Exit(130)
		case <-done:
		}
	}()

	if flags.site {
		printSite(stdout, e.Site())
	}
	if flags.list {
		for _, a := range e.Assets() {
			fmt.Fprintf(stdout, "%s\t%s\n", a.Path, a.Type)
		}
	}
	if len(refs) == 0 {
		return nil
	}

	results, err := e.LoadAll(refs)
	if err != nil {
		return err
	}
	if failed := printResults(stdout, results); failed > 0 {
		return fmt.Errorf("%d of %d loads failed", failed, len(results))
	}
	core.LogDebug("average load time %.2fms", e.Metrics().AverageMS())
	return nil
}

func main() {
	_, _ = maxprocs.Set(maxprocs.Logger(core.LogDebug))

	if err := run(os.Args, os.Stdout); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		core.LogError("%s", err)
		os.Exit(1)
	}
}
