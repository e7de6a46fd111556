package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"lekhaslides/internal/pipeline"
)

var renderOutput string

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render every item and write the PPTX deck",
	RunE:  runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "presentation.pptx", "deck output path")
}

func runRender(cmd *cobra.Command, _ []string) error {
	req, err := loadRequest(cmd.InOrStdin())
	if err != nil {
		return err
	}
	errOut := cmd.ErrOrStderr()

	res, err := newService().Generate(cmd.Context(), req, func(e pipeline.Event) {
		if e.Type == pipeline.EventProgress {
			fmt.Fprintf(errOut, "\rrendered %d/%d", e.Current, e.Total)
			if e.Current == e.Total {
				fmt.Fprintln(errOut)
			}
		}
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(renderOutput, res.Artifact, 0o644); err != nil {
		return fmt.Errorf("write deck: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d slides, %d fallback, %s)\n",
		renderOutput, len(res.Slides), res.Failed, res.Duration.Round(time.Millisecond))
	return nil
}
