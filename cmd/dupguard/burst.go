package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360/dupguard/errors"
	"github.com/c360/dupguard/pkg/worker"
)

type burstOptions struct {
	URL          string
	Method       string
	Body         string
	Headers      []string
	Count        int
	Concurrency  int
	Timeout      time.Duration
	ExpectSingle bool
	Output       string
}

// burstReport counts the responses of one burst.
type burstReport struct {
	Total    int            `json:"total"`
	Success  int            `json:"success"`
	Errors   int            `json:"errors"`
	ByStatus map[string]int `json:"by_status"`
	Elapsed  time.Duration  `json:"elapsed_ns"`
}

// NewBurstCommand fires identical requests at a guarded endpoint.
func NewBurstCommand(_ *RootOptions) *cobra.Command {
	opts := &burstOptions{}

	cmd := &cobra.Command{
		Use:   "burst",
		Short: "Send identical concurrent requests and count the outcomes",
		Long: `Send the same request N times at once and report the status codes.

Against a guarded endpoint exactly one request should succeed and the rest
should be answered with 409 Conflict. --expect-single turns that into the
exit status.`,
		Example: `  dupguard burst --url http://localhost:8080/test?foo=a -n 50
  dupguard burst --url http://localhost:8080/test -X POST --body '{"foo":"a","bar":"b"}' --expect-single`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Output != "text" && opts.Output != "json" {
				return fmt.Errorf("invalid output %q: must be text or json", opts.Output)
			}
			client := &http.Client{Timeout: opts.Timeout}
			report, err := runBurst(cmd.Context(), client, opts)
			if err != nil {
				return err
			}
			if err := writeBurstReport(cmd.OutOrStdout(), report, opts.Output); err != nil {
				return err
			}
			if opts.ExpectSingle && report.Success != 1 {
				return fmt.Errorf("expected exactly one successful response, got %d", report.Success)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.URL, "url", "", "target URL (required)")
	cmd.Flags().StringVarP(&opts.Method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringVar(&opts.Body, "body", "", "request body, sent as application/json")
	cmd.Flags().StringArrayVarP(&opts.Headers, "header", "H", nil, "extra header as 'Name: value' (repeatable)")
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 20, "number of requests")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "requests in flight at once (default: count)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "per-request timeout")
	cmd.Flags().BoolVar(&opts.ExpectSingle, "expect-single", false, "fail unless exactly one request gets a 2xx answer")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "output format: text, json")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

// runBurst queues every request before releasing the workers so they hit the
// server together.
func runBurst(ctx context.Context, client *http.Client, opts *burstOptions) (*burstReport, error) {
	if opts.Count <= 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("count must be positive, got %d", opts.Count),
			"burst", "runBurst", "check count")
	}
	headers, err := parseHeaders(opts.Headers)
	if err != nil {
		return nil, err
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 || concurrency > opts.Count {
		concurrency = opts.Count
	}

	var (
		mu     sync.Mutex
		report = &burstReport{ByStatus: make(map[string]int)}
		gate   = make(chan struct{})
	)
	send := func(ctx context.Context, _ int) error {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}

		status, err := sendOnce(ctx, client, opts, headers)

		mu.Lock()
		defer mu.Unlock()
		report.Total++
		if err != nil {
			report.Errors++
			report.ByStatus["error"]++
			return err
		}
		report.ByStatus[fmt.Sprintf("%d", status)]++
		if status >= 200 && status < 300 {
			report.Success++
		}
		return nil
	}

	pool, err := worker.NewPool(concurrency, opts.Count, send)
	if err != nil {
		return nil, err
	}
	if err := pool.Start(ctx); err != nil {
		return nil, err
	}
	for i := 0; i < opts.Count; i++ {
		if err := pool.Submit(i); err != nil {
			close(gate)
			_ = pool.Stop(opts.Timeout)
			return nil, errors.Wrap(err, "burst", "runBurst", "queue request")
		}
	}

	start := time.Now()
	close(gate)
	if err := pool.Stop(opts.Timeout * time.Duration(opts.Count/concurrency+1)); err != nil {
		return nil, errors.WrapTransient(err, "burst", "runBurst", "wait for responses")
	}
	report.Elapsed = time.Since(start)
	return report, nil
}

func sendOnce(ctx context.Context, client *http.Client, opts *burstOptions, headers http.Header) (int, error) {
	var body io.Reader
	if opts.Body != "" {
		body = strings.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, opts.Method, opts.URL, body)
	if err != nil {
		return 0, err
	}
	for name, values := range headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if opts.Body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func parseHeaders(raw []string) (http.Header, error) {
	headers := make(http.Header, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, errors.WrapInvalid(fmt.Errorf("malformed header %q", h),
				"burst", "parseHeaders", "parse header")
		}
		headers.Add(name, strings.TrimSpace(value))
	}
	return headers, nil
}

func writeBurstReport(w io.Writer, report *burstReport, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	keys := make([]string, 0, len(report.ByStatus))
	for k := range report.ByStatus {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if _, err := fmt.Fprintf(w, "requests: %d\nsuccess:  %d\nelapsed:  %s\n",
		report.Total, report.Success, report.Elapsed.Round(time.Millisecond)); err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "  %s: %d\n", k, report.ByStatus[k]); err != nil {
			return err
		}
	}
	return nil
}
