package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"schoolsync/internal/capture"
)

// newSyncCommand runs exactly one cycle and prints its result.
func newSyncCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle and print the result as JSON",
		Long: `Run one sync cycle against the portal and print the result as JSON.
The exit status is 2 when the cycle did not complete cleanly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openSyncApp(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.orchestrator.RunCycle(cmd.Context())

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if !res.OK {
				return &exitError{code: 2, msg: "sync cycle failed: " + res.Error}
			}
			return nil
		},
	}
}

type exportOptions struct {
	out string
}

func newExportICSCommand(opts *rootOptions) *cobra.Command {
	eo := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export-ics",
		Short: "Write the stored assignments and events as an iCalendar file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openStore(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			body, err := a.exporter().Render(cmd.Context())
			if err != nil {
				return err
			}
			if eo.out == "" || eo.out == "-" {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			if err := os.MkdirAll(filepath.Dir(eo.out), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(eo.out, body, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", eo.out, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d bytes)\n", eo.out, len(body))
			return nil
		},
	}
	cmd.Flags().StringVarP(&eo.out, "out", "o", "-", "output file, - for stdout")
	return cmd
}

type snapshotOptions struct {
	url        string
	rangeKey   string
	includeAll bool
	out        string
	width      int
	height     int
	timeout    time.Duration
}

// newSnapshotCommand captures the widget page of a running server.
func newSnapshotCommand(opts *rootOptions) *cobra.Command {
	so := &snapshotOptions{}
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Render the briefing widget of a running server to a PNG",
		Long: `Open /widget/briefing of a running "schoolsync serve" in headless Chromium
and save a screenshot once the widget reports it is ready. Requires a
Chromium or Chrome binary on PATH.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := so.url
			if target == "" {
				target = widgetURL(opts.cfg.Listen, so.rangeKey, so.includeAll)
			}
			err := capture.SnapshotPNG(cmd.Context(), capture.SnapshotOptions{
				URL:        target,
				OutputPath: so.out,
				Width:      so.width,
				Height:     so.height,
				Timeout:    so.timeout,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", so.out)
			return nil
		},
	}
	cmd.Flags().StringVar(&so.url, "url", "", "widget URL (default: derived from the listen address)")
	cmd.Flags().StringVar(&so.rangeKey, "range", "today", "briefing range (today|48h|week)")
	cmd.Flags().BoolVar(&so.includeAll, "include-all", false, "include assignments that are no longer open")
	cmd.Flags().StringVarP(&so.out, "out", "o", "briefing.png", "output PNG path")
	cmd.Flags().IntVar(&so.width, "width", capture.DefaultWidth, "viewport width in pixels")
	cmd.Flags().IntVar(&so.height, "height", capture.DefaultHeight, "viewport height in pixels")
	cmd.Flags().DurationVar(&so.timeout, "timeout", capture.DefaultTimeout, "overall capture timeout")
	return cmd
}

// widgetURL points at the local server. A wildcard listen host is replaced
// by loopback.
func widgetURL(listen, rangeKey string, includeAll bool) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		host, port = "127.0.0.1", "8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	q := url.Values{}
	if rangeKey != "" {
		q.Set("range", rangeKey)
	}
	if includeAll {
		q.Set("include_all", "true")
	}
	u := url.URL{
		Scheme:   "http",
		Host:     net.JoinHostPort(host, port),
		Path:     "/widget/briefing",
		RawQuery: q.Encode(),
	}
	return u.String()
}
