package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	service "github.com/okian/lutcurate/internal/app"
	"github.com/okian/lutcurate/internal/domain/model"
)

func newClusterCmd(c *cli) *cobra.Command {
	req := service.ClusterRequest{
		NClusters: 5,
		Metric:    model.Lightweight7D.String(),
		Algorithm: model.CentroidBased.String(),
	}
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Group the catalog into visually similar clusters",
		Long: `Clusters every catalogued LUT and replaces the current assignments.
Distilled flags from earlier runs are cleared.

Metrics: lightweight_7d, image_features, image_similarity, ssim, euclidean.
Image metrics require a reference image and the hierarchical_precomputed
algorithm.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withService(ctx, func(svc *service.Service) error {
				res, err := svc.Cluster(ctx, req)
				if err != nil {
					return err
				}
				printClusterResult(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&req.NClusters, "clusters", "k", req.NClusters, "number of clusters")
	cmd.Flags().StringVarP(&req.Metric, "metric", "m", req.Metric, "similarity metric")
	cmd.Flags().StringVarP(&req.Algorithm, "algorithm", "a", req.Algorithm, "clustering algorithm")
	cmd.Flags().BoolVar(&req.ReuseImages, "reuse-images", true, "reuse rendered reference images from the render cache")
	return cmd
}

func printClusterResult(w io.Writer, res *service.ClusterResult) {
	fmt.Fprintf(w, "%d clusters over %d files (%s, %s)\n", res.NClusters, res.TotalFiles, res.Metric, res.Algorithm)
	printClusterStats(w, res.ClusterStats)
	if len(res.FailedFiles) > 0 {
		fmt.Fprintf(w, "%d files could not be analyzed:\n", len(res.FailedFiles))
		for _, f := range res.FailedFiles {
			fmt.Fprintf(w, "  %s: %s\n", f.Filename, f.Error)
		}
	}
}

func printClusterStats(w io.Writer, stats map[int]int) {
	ids := make([]int, 0, len(stats))
	for id := range stats {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLUSTER\tMEMBERS")
	for _, id := range ids {
		fmt.Fprintf(tw, "%d\t%d\n", id, stats[id])
	}
	_ = tw.Flush()
}
