package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"lekhaslides/internal/pipeline"
)

var (
	previewPage     int
	previewPageSize int
	previewDir      string
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render one page of previews as PNG files",
	RunE:  runPreview,
}

func init() {
	f := previewCmd.Flags()
	f.IntVar(&previewPage, "page", 1, "page to render (1-based)")
	f.IntVar(&previewPageSize, "page-size", pipeline.DefaultPageSize, "items per page")
	f.StringVarP(&previewDir, "out-dir", "d", "previews", "directory for the PNG files")
}

func runPreview(cmd *cobra.Command, _ []string) error {
	req, err := loadRequest(cmd.InOrStdin())
	if err != nil {
		return err
	}
	page, err := newService().PreviewPage(cmd.Context(), req, previewPage, previewPageSize)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(previewDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for _, s := range page.Slides {
		_, payload, ok := strings.Cut(s.Image, ";base64,")
		if !ok {
			return fmt.Errorf("slide %d: unexpected image encoding", s.Number)
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return fmt.Errorf("slide %d: %w", s.Number, err)
		}
		name := filepath.Join(previewDir, fmt.Sprintf("slide-%03d.png", s.Number))
		if err := os.WriteFile(name, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "page %d/%d: wrote %d previews to %s\n",
		page.CurrentPage, page.TotalPages, len(page.Slides), previewDir)
	return nil
}
