package main

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/embedlife/internal/cluster"
	httpserver "github.com/fyrsmithlabs/embedlife/internal/http"
	"github.com/fyrsmithlabs/embedlife/internal/storemanager"
	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

func newHealthCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check embedlifed health",
		Long: `Check the health of the store, search and clustering.

Examples:
  embedctl health
  embedctl health --server http://embedlife.internal:8085`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(false)
			if err != nil {
				return err
			}
			var resp httpserver.HealthResponse
			_, err = c.do(http.MethodGet, "/health", nil, &resp)
			var apiErr *apiError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable {
				return fmt.Errorf("server is degraded: %s", apiErr.Message)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "Status: %s\n", resp.Status)
			if resp.Report != nil {
				names := make([]string, 0, len(resp.Report.Checks))
				for name := range resp.Report.Checks {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					state := "ok"
					if !resp.Report.Checks[name] {
						state = "failed"
					}
					fmt.Fprintf(opts.out, "  %-12s %s\n", name, state)
				}
			}
			return nil
		},
	}
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics for the tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(true)
			if err != nil {
				return err
			}
			var stats storemanager.Statistics
			if _, err := c.do(http.MethodGet, "/api/v1/stats", nil, &stats); err != nil {
				return err
			}
			if asJSON {
				return printJSON(opts.out, stats)
			}
			w := tabwriter.NewWriter(opts.out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Documents:\t%d\n", stats.TotalDocuments)
			fmt.Fprintf(w, "Chunks:\t%d\n", stats.TotalChunks)
			fmt.Fprintf(w, "Clusters:\t%d\n", stats.TotalClusters)
			fmt.Fprintf(w, "Cache hit rate:\t%.1f%%\n", stats.CacheHitRate*100)
			fmt.Fprintf(w, "Storage:\t%d bytes\n", stats.StorageBytes)
			for _, ct := range vectorstore.ContentTypes {
				if n := stats.DocumentsByType[ct]; n > 0 {
					fmt.Fprintf(w, "  %s:\t%d\n", ct, n)
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}

func newClustersCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clusters",
		Short: "Show cluster statistics for the tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(true)
			if err != nil {
				return err
			}
			var stats cluster.Stats
			if _, err := c.do(http.MethodGet, "/api/v1/clusters", nil, &stats); err != nil {
				return err
			}
			return printJSON(opts.out, stats)
		},
	}
}

func newMaintenanceCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Run or inspect maintenance operations",
	}
	cmd.AddCommand(
		newMaintenanceStatusCmd(opts),
		newReindexCmd(opts),
		newRebalanceCmd(opts),
		newCleanupCmd(opts),
	)
	return cmd
}

func newMaintenanceStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of every maintenance operation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(true)
			if err != nil {
				return err
			}
			var st storemanager.MaintenanceStatus
			if _, err := c.do(http.MethodGet, "/api/v1/maintenance", nil, &st); err != nil {
				return err
			}
			w := tabwriter.NewWriter(opts.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "OPERATION\tRUNNING\tPROGRESS\tCOMPLETED\tLAST ERROR")
			for _, row := range []struct {
				name  string
				state storemanager.OperationState
			}{
				{"reindexing", st.Reindexing},
				{"clustering", st.Clustering},
				{"compression", st.Compression},
				{"cleanup", st.Cleanup},
			} {
				completed := "-"
				if !row.state.CompletedAt.IsZero() {
					completed = row.state.CompletedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%t\t%.0f%%\t%s\t%s\n", row.name, row.state.InProgress, row.state.Progress*100, completed, row.state.LastError)
			}
			return w.Flush()
		},
	}
}

func newReindexCmd(opts *globalOptions) *cobra.Command {
	var req httpserver.ReindexRequest
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Re-embed every document of the tenant",
		Long: `Re-embed every document of the tenant, then rebalance its clusters.

Without --wait the server runs the reindex in the background; follow it
with "embedctl maintenance status".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(true)
			if err != nil {
				return err
			}
			if !req.Wait {
				if _, err := c.do(http.MethodPost, "/api/v1/maintenance/reindex", req, nil); err != nil {
					return err
				}
				fmt.Fprintln(opts.out, "Reindex started.")
				return nil
			}
			var res storemanager.ReindexResult
			if _, err := c.do(http.MethodPost, "/api/v1/maintenance/reindex", req, &res); err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "Reindexed %d documents (%d failed) in %s\n", res.Processed, res.Failed, res.Duration)
			for _, e := range res.Errors {
				fmt.Fprintf(opts.out, "  %s\n", e)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&req.BatchSize, "batch-size", 0, "documents per batch (server default when 0)")
	cmd.Flags().IntVar(&req.DelayMS, "delay-ms", 0, "pause between batches in milliseconds")
	cmd.Flags().BoolVar(&req.Wait, "wait", false, "wait for the reindex to finish")
	return cmd
}

func newRebalanceCmd(opts *globalOptions) *cobra.Command {
	var contentType string
	cmd := &cobra.Command{
		Use:   "rebalance",
		Short: "Recompute the tenant's clusters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(true)
			if err != nil {
				return err
			}
			var req httpserver.RebalanceRequest
			if contentType != "" {
				ct, err := vectorstore.ParseContentType(contentType)
				if err != nil {
					return err
				}
				req.ContentType = ct
			}
			var res cluster.RebalanceResult
			if _, err := c.do(http.MethodPost, "/api/v1/maintenance/rebalance", req, &res); err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "Rebalanced %d content types, moved %d documents in %s\n", len(res.Types), res.DocumentsMoved(), res.Duration)
			return nil
		},
	}
	cmd.Flags().StringVar(&contentType, "type", "", "only rebalance this content type")
	return cmd
}

func newCleanupCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove empty clusters and orphaned memberships",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(true)
			if err != nil {
				return err
			}
			var res cluster.CleanupResult
			if _, err := c.do(http.MethodPost, "/api/v1/maintenance/cleanup", nil, &res); err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "Deleted %d clusters and %d memberships\n", res.ClustersDeleted, res.MembershipsDeleted)
			return nil
		},
	}
}
