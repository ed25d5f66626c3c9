// Command grainhull approximates the outer surface layer of a grain's
// point cloud and reports which points lie on it.
//
//	grainhull [-config file] [-out file] [-plot dir] [-spacing s] input.vtu|input.grain
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/chazu/grainhull/pkg/config"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatalln(err)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("grainhull", flag.ContinueOnError)
	configFile := fs.String("config", "", "TOML configuration file")
	outFile := fs.String("out", "", "write the JSON report here instead of stdout")
	plotDir := fs.String("plot", "", "write XY/XZ/YZ projection PNGs into this directory")
	spacing := fs.Float64("spacing", 0, "point spacing in real units (overrides config)")
	workers := fs.Int("workers", -1, "projection goroutines per vertex (overrides config)")
	preferOutside := fs.Bool("prefer-outside", false, "snap vertices to points in front of the surface when possible")
	quiet := fs.Bool("quiet", false, "suppress progress logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("expected exactly one input file, got %d", fs.NArg())
	}

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return err
		}
	}
	// cli overrides
	if *outFile != "" {
		cfg.Output.Path = *outFile
	}
	if *plotDir != "" {
		cfg.Output.PlotDir = *plotDir
	}
	if *spacing != 0 {
		cfg.Spacing = *spacing
	}
	if *workers >= 0 {
		cfg.Projection.Workers = *workers
	}
	if *preferOutside {
		cfg.Projection.PreferOutside = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.Default()
	if *quiet {
		logger = log.New(io.Discard, "", 0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := NewApp(cfg, logger).Run(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	return writeReport(report, cfg.Output.Path, stdout)
}

func writeReport(report *Report, path string, stdout io.Writer) (err error) {
	w := stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func readSource(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
