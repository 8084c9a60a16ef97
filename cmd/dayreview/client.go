package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/dayreview/internal/domain"
	"github.com/ashureev/dayreview/internal/engine"
)

const requestTimeout = 30 * time.Second

type clientOptions struct {
	addr string
	json bool
}

// client talks to a running daemon over the loopback API.
type client struct {
	base string
	http *http.Client
}

func newClient(opts *clientOptions) *client {
	addr := opts.addr
	if addr == "" {
		addr = os.Getenv("DAYREVIEW_LISTEN_ADDR")
	}
	if addr == "" {
		addr = "127.0.0.1:7817"
	}
	return &client{base: "http://" + addr, http: &http.Client{Timeout: requestTimeout}}
}

// do sends a request and decodes a JSON response into out, returning the
// raw body as well for --json output.
func (c *client) do(ctx context.Context, method, path string, out any) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s (is `dayreview run` running?): %w", c.base, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return nil, fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return body, nil
}

func printRaw(w io.Writer, body []byte) {
	fmt.Fprintln(w, string(body))
}

func statsCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show today's statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var stats engine.Stats
			body, err := newClient(opts).do(cmd.Context(), http.MethodGet, "/api/today", &stats)
			if err != nil {
				return err
			}
			if opts.json {
				printRaw(cmd.OutOrStdout(), body)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderStats(stats))
			return nil
		},
	}
}

func reportCmd(opts *clientOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a report for today, or regenerate a past day's report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/api/report"
			if date != "" {
				d, err := domain.ParseDate(date)
				if err != nil {
					return err
				}
				path += "?date=" + url.QueryEscape(string(d))
			}
			var report domain.Report
			body, err := newClient(opts).do(cmd.Context(), http.MethodPost, path, &report)
			if err != nil {
				return err
			}
			if opts.json {
				printRaw(cmd.OutOrStdout(), body)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderReport(report))
			return nil
		},
	}
	cmd.Flags().StringVarP(&date, "date", "d", "", "Regenerate the report of a sealed day (YYYY-MM-DD)")
	return cmd
}

func toggleCmd(opts *clientOptions, use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st engine.Status
			body, err := newClient(opts).do(cmd.Context(), http.MethodPost, path, &st)
			if err != nil {
				return err
			}
			if opts.json {
				printRaw(cmd.OutOrStdout(), body)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderStatus(st))
			return nil
		},
	}
}

func pauseCmd(opts *clientOptions) *cobra.Command {
	return toggleCmd(opts, "pause", "Pause monitoring", "/api/pause")
}

func resumeCmd(opts *clientOptions) *cobra.Command {
	return toggleCmd(opts, "resume", "Resume monitoring", "/api/resume")
}

func showCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <date>",
		Short: "Show a stored day (YYYY-MM-DD)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := domain.ParseDate(args[0])
			if err != nil {
				return err
			}
			var day domain.DaySummary
			body, err := newClient(opts).do(cmd.Context(), http.MethodGet, "/api/days/"+string(date), &day)
			if err != nil {
				return err
			}
			if opts.json {
				printRaw(cmd.OutOrStdout(), body)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderDay(day))
			return nil
		},
	}
}

func historyCmd(opts *clientOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var days []domain.DaySummary
			path := "/api/days?limit=" + strconv.Itoa(limit)
			body, err := newClient(opts).do(cmd.Context(), http.MethodGet, path, &days)
			if err != nil {
				return err
			}
			if opts.json {
				printRaw(cmd.OutOrStdout(), body)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderHistory(days))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 7, "Number of days")
	return cmd
}
