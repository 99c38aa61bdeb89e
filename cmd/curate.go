package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	service "github.com/okian/lutcurate/internal/app"
	"github.com/okian/lutcurate/internal/domain/curation"
)

func parseClusterID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid cluster id %q", arg)
	}
	return id, nil
}

func newMembersCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "members <cluster>",
		Short: "List the live members of a cluster, closest to the center first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseClusterID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return c.withService(ctx, func(svc *service.Service) error {
				members, err := svc.Members(ctx, id)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "LUT\tFILENAME\tDISTANCE")
				for _, m := range members {
					dist := "-"
					if m.DistanceToCenter != nil {
						dist = strconv.FormatFloat(*m.DistanceToCenter, 'f', 4, 64)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", m.LutID, m.Filename, dist)
				}
				return tw.Flush()
			})
		},
	}
}

func newDistillCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "distill <cluster> <lut-id>...",
		Short: "Hide redundant members from a cluster",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseClusterID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return c.withService(ctx, func(svc *service.Service) error {
				for _, lutID := range args[1:] {
					if err := svc.Distill(ctx, id, lutID); err != nil {
						return fmt.Errorf("distill %s: %w", lutID, err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "distilled %d from cluster %d\n", len(args)-1, id)
				return nil
			})
		},
	}
}

func newSnapshotCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Freeze, list and export curated groupings",
	}
	cmd.AddCommand(newSnapshotCreateCmd(c), newSnapshotListCmd(c), newSnapshotExportCmd(c))
	return cmd
}

func newSnapshotCreateCmd(c *cli) *cobra.Command {
	var req curation.SnapshotRequest
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Freeze the live grouping under a name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = args[0]
			ctx := cmd.Context()
			return c.withService(ctx, func(svc *service.Service) error {
				snap, err := svc.CreateSnapshot(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d clusters\n", snap.ID, snap.Name, snap.NClusters)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Description, "description", "", "free-form description")
	cmd.Flags().StringVar(&req.Metric, "metric", "", "metric recorded on the snapshot (default: current run)")
	cmd.Flags().StringVar(&req.Algorithm, "algorithm", "", "algorithm recorded on the snapshot (default: current run)")
	return cmd
}

func newSnapshotListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withService(ctx, func(svc *service.Service) error {
				snaps, err := svc.Snapshots(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tMETRIC\tCLUSTERS\tCREATED")
				for _, s := range snaps {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", s.ID, s.Name, s.Metric, s.NClusters, s.CreatedAt.Format("2006-01-02 15:04"))
				}
				return tw.Flush()
			})
		},
	}
}

func newSnapshotExportCmd(c *cli) *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write a snapshot as JSON or YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := curation.ParseFormat(format)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return c.withService(ctx, func(svc *service.Service) error {
				snap, err := svc.Snapshot(ctx, args[0])
				if err != nil {
					return err
				}
				var w io.Writer = cmd.OutOrStdout()
				if output != "" {
					file, err := os.Create(output)
					if err != nil {
						return err
					}
					defer func() { _ = file.Close() }()
					w = file
				}
				return curation.ExportSnapshot(w, snap, f)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write instead of stdout")
	return cmd
}
