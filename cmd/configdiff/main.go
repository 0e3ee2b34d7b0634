// configdiff prints the structural diff between two EdgeRouter
// configuration files.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/psaab/erconf/pkg/config"
)

func main() {
	orderedKeys := flag.String("ordered-keys", "address", "comma-separated entry keys whose order is significant")
	unified := flag.Bool("unified", false, "print a line-based unified diff instead")
	context := flag.Int("context", 3, "context lines for -unified")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: configdiff [flags] LEFT RIGHT\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), flag.Arg(1), config.ParsePolicy(*orderedKeys), *unified, *context); err != nil {
		fmt.Fprintf(os.Stderr, "configdiff: %v\n", err)
		os.Exit(1)
	}
}

func run(leftPath, rightPath string, policy config.Policy, unified bool, context int) error {
	left, err := load(leftPath, policy)
	if err != nil {
		return err
	}
	right, err := load(rightPath, policy)
	if err != nil {
		return err
	}

	if unified {
		out, err := config.UnifiedDiff(left, right, leftPath, rightPath, context)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}

	lines, err := left.Diff(right)
	if err != nil {
		return err
	}
	fmt.Print(config.FormatDiff(lines))
	slog.Debug("diff complete", "stats", config.Summarize(lines).String())
	return nil
}

func load(path string, policy config.Policy) (*config.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p := config.NewParser(string(data), policy)
	cfg, err := p.Parse()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, w := range p.Warnings() {
		slog.Warn("config warning", "file", path, "line", w.Line, "msg", w.Message)
	}
	return cfg, nil
}
