package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	service "github.com/okian/lutcurate/internal/app"
	"github.com/okian/lutcurate/pkg/logger"
)

func newIngestCmd(c *cli) *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "ingest <dir>",
		Short: "Add LUT files found under dir to the catalog",
		Long: `Walks dir for files matching --pattern and catalogs each one under its
path relative to dir. Paths already in the catalog are left untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			root := args[0]
			matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
			if err != nil {
				return fmt.Errorf("match %q: %w", pattern, err)
			}
			sort.Strings(matches)

			return c.withService(ctx, func(svc *service.Service) error {
				var created, existing, failed int
				for _, rel := range matches {
					data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
					if err != nil {
						failed++
						c.log.Warn(ctx, "read lut file", logger.String("path", rel), logger.Error(err))
						continue
					}
					asset, isNew, err := svc.Ingest(ctx, rel, data)
					if err != nil {
						return fmt.Errorf("ingest %s: %w", rel, err)
					}
					if isNew {
						created++
						c.log.Debug(ctx, "lut catalogued", logger.String("id", asset.ID), logger.String("filename", rel))
					} else {
						existing++
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "matched %d, added %d, already catalogued %d, unreadable %d\n",
					len(matches), created, existing, failed)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "**/*.cube", "glob selecting LUT files, relative to dir")
	return cmd
}
