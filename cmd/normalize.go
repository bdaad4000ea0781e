package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stbl-strategies/catalog-cli/internal/pipeline"
	"github.com/stbl-strategies/catalog-cli/pkg/catalog"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize <catalog.json>",
	Short: "Re-run normalization over a saved catalog file",
	Long:  "Reloads a saved catalog, reapplies whitespace cleanup, dedupe, break sorting, and margin math, and rewrites the file in place. Useful after hand-edits or a normalization fix.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := normalizeCatalogFile(args[0])
		if err != nil {
			return err
		}
		zap.L().Info("catalog normalized",
			zap.String("path", args[0]),
			zap.String("job", cat.Metadata.JobID),
			zap.Int("products", len(cat.Products)),
		)
		return nil
	},
}

// normalizeCatalogFile loads a saved catalog, re-normalizes it, and
// rewrites it atomically (temp file in the same directory, then rename).
func normalizeCatalogFile(path string) (*catalog.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read catalog")
	}
	var cat catalog.Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, eris.Wrap(err, "parse catalog")
	}

	pipeline.Normalize(&cat, cat.Metadata.JobID)

	out, err := json.MarshalIndent(&cat, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "encode catalog")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".normalize-*")
	if err != nil {
		return nil, eris.Wrap(err, "create temp file")
	}
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, eris.Wrap(err, "write catalog")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, eris.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return nil, eris.Wrap(err, "replace catalog")
	}
	return &cat, nil
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
}
