package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"lekhaslides/internal/pipeline"
	"lekhaslides/internal/pkg/logger"
	"lekhaslides/internal/resources"
	"lekhaslides/internal/slides"
)

type options struct {
	Background  string
	Items       string
	Style       string
	Title       string
	Concurrency int
	FontDir     string
	LogLevel    string
}

var opts options

var rootCmd = &cobra.Command{
	Use:           "slidegen",
	Short:         "Render question slides from local files",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&opts.Background, "background", "b", "", "background image (png, jpeg, gif or webp)")
	f.StringVarP(&opts.Items, "items", "i", "", "content items JSON file ('-' reads stdin)")
	f.StringVarP(&opts.Style, "config", "c", "", "global style override JSON file")
	f.StringVar(&opts.Title, "title", "", "deck title")
	f.IntVar(&opts.Concurrency, "concurrency", pipeline.DefaultConcurrency, "render workers")
	f.StringVar(&opts.FontDir, "font-dir", "", "directory searched for TTF fonts")
	f.StringVar(&opts.LogLevel, "log-level", "warn", "debug, info, warn or error")

	rootCmd.AddCommand(renderCmd, previewCmd)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newService() *pipeline.Service {
	log := logger.New(logger.Config{Level: opts.LogLevel, Format: "text", Output: os.Stderr, ServiceName: "slidegen"})
	return pipeline.NewService(pipeline.Options{
		Concurrency: opts.Concurrency,
		Fonts:       resources.NewFontLibrary(opts.FontDir),
		Log:         log,
	})
}

// loadRequest reads the background, the items and the optional style from disk.
func loadRequest(stdin io.Reader) (pipeline.BatchRequest, error) {
	var req pipeline.BatchRequest
	if opts.Background == "" {
		return req, fmt.Errorf("--background is required")
	}
	if opts.Items == "" {
		return req, fmt.Errorf("--items is required")
	}

	bg, err := os.ReadFile(opts.Background)
	if err != nil {
		return req, fmt.Errorf("read background: %w", err)
	}
	req.Background = bg
	req.Title = opts.Title

	var items []byte
	if opts.Items == "-" {
		items, err = io.ReadAll(stdin)
	} else {
		items, err = os.ReadFile(opts.Items)
	}
	if err != nil {
		return req, fmt.Errorf("read items: %w", err)
	}
	if err := json.Unmarshal(items, &req.Items); err != nil {
		return req, fmt.Errorf("parse items: %w", err)
	}

	if opts.Style != "" {
		data, err := os.ReadFile(opts.Style)
		if err != nil {
			return req, fmt.Errorf("read config: %w", err)
		}
		req.Style = new(slides.StyleOverride)
		if err := json.Unmarshal(data, req.Style); err != nil {
			return req, fmt.Errorf("parse config: %w", err)
		}
	}
	return req, nil
}
