package main

import (
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/embedlife/internal/http"
	"github.com/fyrsmithlabs/embedlife/internal/indexer"
	"github.com/fyrsmithlabs/embedlife/internal/storemanager"
	"github.com/fyrsmithlabs/embedlife/internal/vectorstore"
)

// documentFlags are shared by index and update.
type documentFlags struct {
	title       string
	contentType string
	metadata    map[string]string
	sourceID    string
	sourceURL   string
	language    string
	id          string
	json        bool
}

func (f *documentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "document title (defaults to the file name)")
	cmd.Flags().StringVar(&f.contentType, "type", string(vectorstore.ContentTypeContent), "content type")
	cmd.Flags().StringToStringVar(&f.metadata, "meta", nil, "metadata key=value pairs")
	cmd.Flags().StringVar(&f.sourceID, "source-id", "", "source system identifier")
	cmd.Flags().StringVar(&f.sourceURL, "source-url", "", "source URL")
	cmd.Flags().StringVar(&f.language, "language", "", "content language")
	cmd.Flags().BoolVar(&f.json, "json", false, "output results as JSON")
}

func (f *documentFlags) request(file, content string) (httpserver.DocumentRequest, error) {
	ct, err := vectorstore.ParseContentType(f.contentType)
	if err != nil {
		return httpserver.DocumentRequest{}, err
	}
	title := f.title
	if title == "" && file != "-" {
		base := filepath.Base(file)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	var md vectorstore.Metadata
	if len(f.metadata) > 0 {
		md = make(vectorstore.Metadata, len(f.metadata))
		for k, v := range f.metadata {
			md[k] = v
		}
	}
	return httpserver.DocumentRequest{
		Content:     content,
		Title:       title,
		ContentType: ct,
		Metadata:    md,
		SourceID:    f.sourceID,
		SourceURL:   f.sourceURL,
		Language:    f.language,
		DocumentID:  f.id,
	}, nil
}

func newIndexCmd(opts *globalOptions) *cobra.Command {
	f := &documentFlags{}
	cmd := &cobra.Command{
		Use:   "index FILE",
		Short: "Index a document from a file or stdin",
		Long: `Index a document from a file or stdin ("-").

Examples:
  # Index a product description
  embedctl index --tenant acme --type product --meta sku=HP-100 headphones.md

  # Index from stdin with a fixed id
  cat faq.txt | embedctl index --tenant acme --type faq --id faq-returns -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(true)
			if err != nil {
				return err
			}
			content, err := readContent(args[0])
			if err != nil {
				return err
			}
			req, err := f.request(args[0], content)
			if err != nil {
				return err
			}
			var res indexer.Result
			status, err := c.do(http.MethodPost, "/api/v1/documents", req, &res)
			if err != nil {
				return err
			}
			return printIndexResult(opts, f.json, "Indexed", status, &res)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&f.id, "id", "", "document id (generated when empty)")
	return cmd
}

func newUpdateCmd(opts *globalOptions) *cobra.Command {
	f := &documentFlags{}
	cmd := &cobra.Command{
		Use:   "update ID FILE",
		Short: "Replace the content of a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(true)
			if err != nil {
				return err
			}
			content, err := readContent(args[1])
			if err != nil {
				return err
			}
			req, err := f.request(args[1], content)
			if err != nil {
				return err
			}
			var res indexer.Result
			status, err := c.do(http.MethodPut, "/api/v1/documents/"+url.PathEscape(args[0]), req, &res)
			if err != nil {
				return err
			}
			return printIndexResult(opts, f.json, "Updated", status, &res)
		},
	}
	f.register(cmd)
	return cmd
}

func printIndexResult(opts *globalOptions, asJSON bool, verb string, status int, res *indexer.Result) error {
	if asJSON {
		return printJSON(opts.out, res)
	}
	if status == http.StatusUnprocessableEntity || !res.Success {
		return fmt.Errorf("indexing failed: %s", strings.Join(res.Errors, "; "))
	}
	fmt.Fprintf(opts.out, "%s document %s (%d chunks, %d tokens", verb, res.DocumentID, res.TotalChunks, res.TokenCount)
	if res.ClusterID != "" {
		fmt.Fprintf(opts.out, ", cluster %s", res.ClusterID)
	}
	fmt.Fprintln(opts.out, ")")
	return nil
}

func newGetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(true)
			if err != nil {
				return err
			}
			var doc vectorstore.Document
			if _, err := c.do(http.MethodGet, "/api/v1/documents/"+url.PathEscape(args[0]), nil, &doc); err != nil {
				return err
			}
			doc.Embedding = nil
			return printJSON(opts.out, doc)
		},
	}
}

func newDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a document with its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(true)
			if err != nil {
				return err
			}
			if _, err := c.do(http.MethodDelete, "/api/v1/documents/"+url.PathEscape(args[0]), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "Deleted document %s\n", args[0])
			return nil
		},
	}
}

func newVersionsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "versions ID",
		Short: "List the backed up versions of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client(true)
			if err != nil {
				return err
			}
			var backups []storemanager.Backup
			if _, err := c.do(http.MethodGet, "/api/v1/documents/"+url.PathEscape(args[0])+"/versions", nil, &backups); err != nil {
				return err
			}
			if len(backups) == 0 {
				fmt.Fprintln(opts.out, "No previous versions.")
				return nil
			}
			w := tabwriter.NewWriter(opts.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tTITLE\tCHUNKS\tBYTES\tBACKED UP")
			for _, b := range backups {
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n", b.Version, b.Title, b.ChunkCount, b.ContentLength, b.BackedUpAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
}
