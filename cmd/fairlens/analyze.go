package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pario-ai/fairlens/pkg/models"
)

func newAnalyzeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <session.json>",
		Short: "Analyze one session file and print the result",
		Long:  "Analyze reads a session as JSON from the given file (or stdin when the file is \"-\"), runs the four-layer analysis and prints the result as JSON.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var subject models.Subject
			if err := readJSON(args[0], &subject); err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			res, err := a.engine.AnalyzeSession(cmd.Context(), &subject)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}

// readJSON decodes the file at path, or stdin when path is "-", into v.
func readJSON(path string, v any) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
