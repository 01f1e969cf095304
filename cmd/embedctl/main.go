// Package main implements embedctl, a CLI for the embedlife HTTP API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/embedlife/internal/http"
)

var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	server  string
	tenant  string
	timeout time.Duration
	out     io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &globalOptions{out: out}
	root := &cobra.Command{
		Use:   "embedctl",
		Short: "CLI for the embedlife HTTP API",
		Long: `embedctl talks to a running embedlifed. It indexes, updates and deletes
documents, runs searches and triggers maintenance for one tenant.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("EMBEDLIFE_URL", "http://localhost:8085"), "embedlifed server URL")
	root.PersistentFlags().StringVar(&opts.tenant, "tenant", os.Getenv("EMBEDLIFE_TENANT"), "tenant identifier")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(
		newIndexCmd(opts),
		newGetCmd(opts),
		newUpdateCmd(opts),
		newDeleteCmd(opts),
		newVersionsCmd(opts),
		newSearchCmd(opts),
		newHealthCmd(opts),
		newStatsCmd(opts),
		newClustersCmd(opts),
		newMaintenanceCmd(opts),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// client returns an API client for opts. Commands under /api/v1 need a
// tenant.
func (o *globalOptions) client(needTenant bool) (*apiClient, error) {
	if needTenant && o.tenant == "" {
		return nil, fmt.Errorf("--tenant is required (or set EMBEDLIFE_TENANT)")
	}
	return &apiClient{
		baseURL: strings.TrimRight(o.server, "/"),
		tenant:  o.tenant,
		http:    &http.Client{Timeout: o.timeout},
	}, nil
}

type apiClient struct {
	baseURL string
	tenant  string
	http    *http.Client
}

// apiError is a non-2xx response.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// do sends body as JSON and decodes a JSON response into out. out may be
// nil.
func (c *apiClient) do(method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tenant != "" {
		req.Header.Set(httpserver.HeaderTenantID, c.tenant)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var e httpserver.ErrorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return resp.StatusCode, &apiError{Status: resp.StatusCode, Message: e.Error}
		}
		return resp.StatusCode, &apiError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// printJSON writes v indented.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readContent reads a file, or stdin for "-".
func readContent(arg string) (string, error) {
	var (
		data []byte
		err  error
	)
	if arg == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(arg)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", arg, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return "", fmt.Errorf("no content in %s", arg)
	}
	return string(data), nil
}
