package main

import (
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/embedlife/internal/http"
	"github.com/fyrsmithlabs/embedlife/internal/reranker"
	"github.com/fyrsmithlabs/embedlife/internal/search"
	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

type searchFlags struct {
	limit         int
	threshold     float64
	types         []string
	strategy      string
	filters       map[string]string
	aggregate     bool
	includeChunks bool
	rerank        string
	history       []string
	reference     string
	minRefSim     float64
	json          bool
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	f := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search the tenant's documents",
		Long: `Search the tenant's documents.

Examples:
  # Vector search over products
  embedctl search --tenant acme --type product "noise cancelling headphones"

  # Follow-up query with conversation history
  embedctl search --tenant acme --history "wireless headphones" "what about battery?"

  # Results similar to a reference document
  embedctl search --tenant acme --reference HP-100 "over-ear"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(true)
			if err != nil {
				return err
			}
			so, err := f.options(cmd)
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")

			var (
				resp search.Response
				body any
				path = "/api/v1/search"
			)
			switch {
			case len(f.history) > 0:
				path = "/api/v1/search/contextual"
				body = httpserver.ContextualSearchRequest{Query: query, History: f.history, Options: so}
			case f.reference != "":
				body = httpserver.SearchRequest{Query: query, Options: so, MultiModal: &search.MultiModalOptions{
					ReferenceDocumentID:    f.reference,
					MinReferenceSimilarity: f.minRefSim,
				}}
			default:
				body = httpserver.SearchRequest{Query: query, Options: so}
			}
			if _, err := c.do(http.MethodPost, path, body, &resp); err != nil {
				return err
			}
			if f.json {
				return printJSON(opts.out, resp)
			}
			return printResults(opts, &resp)
		},
	}
	cmd.Flags().IntVar(&f.limit, "limit", 10, "maximum number of results")
	cmd.Flags().Float64Var(&f.threshold, "threshold", search.DefaultThreshold, "minimum score")
	cmd.Flags().StringSliceVar(&f.types, "type", nil, "restrict to content types")
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "auto, vector, hybrid or cluster")
	cmd.Flags().StringToStringVar(&f.filters, "filter", nil, "metadata filters key=value")
	cmd.Flags().BoolVar(&f.aggregate, "aggregate", false, "merge chunk hits into their parent document")
	cmd.Flags().BoolVar(&f.includeChunks, "include-chunks", false, "return chunk records")
	cmd.Flags().StringVar(&f.rerank, "rerank", "", "rerank with semantic, hybrid, term_overlap or cross_encoder")
	cmd.Flags().StringSliceVar(&f.history, "history", nil, "earlier queries, oldest first")
	cmd.Flags().StringVar(&f.reference, "reference", "", "reference document id")
	cmd.Flags().Float64Var(&f.minRefSim, "min-reference-similarity", 0.5, "minimum similarity to the reference document")
	cmd.Flags().BoolVar(&f.json, "json", false, "output results as JSON")
	return cmd
}

func (f *searchFlags) options(cmd *cobra.Command) (search.Options, error) {
	so := search.Options{
		Limit:           f.limit,
		Strategy:        search.Strategy(f.strategy),
		Filters:         f.filters,
		AggregateChunks: f.aggregate,
		IncludeChunks:   f.includeChunks,
	}
	if cmd.Flags().Changed("threshold") {
		t := f.threshold
		so.Threshold = &t
	}
	for _, s := range f.types {
		ct, err := vectorstore.ParseContentType(s)
		if err != nil {
			return so, err
		}
		so.ContentTypes = append(so.ContentTypes, ct)
	}
	if f.rerank != "" {
		so.Rerank = &search.RerankOptions{Strategy: reranker.Strategy(f.rerank)}
	}
	return so, nil
}

func printResults(opts *globalOptions, resp *search.Response) error {
	if len(resp.Results) == 0 {
		fmt.Fprintln(opts.out, "No results.")
		return nil
	}
	w := tabwriter.NewWriter(opts.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tSCORE\tTYPE\tID\tTITLE")
	for i, r := range resp.Results {
		score := r.CombinedScore
		if score == 0 {
			score = r.Similarity
		}
		fmt.Fprintf(w, "%d\t%.3f\t%s\t%s\t%s\n", i+1, score, r.Document.ContentType, r.Document.ID, r.Document.Title)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	a := resp.Analytics
	fmt.Fprintf(opts.out, "\n%d of %d candidates, strategy %s, %s", a.Returned, a.TotalCandidates, a.Strategy, a.TotalTime)
	if a.CacheHit {
		fmt.Fprint(opts.out, " (cached)")
	}
	fmt.Fprintln(opts.out)
	return nil
}
