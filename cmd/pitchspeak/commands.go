package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/sjawhar/pitchspeak/internal/estimate"
	"github.com/sjawhar/pitchspeak/internal/export"
	"github.com/sjawhar/pitchspeak/internal/mcpserver"
)

// --- quota ---

func newQuotaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show how many sessions an owner has left",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			if owner == "" {
				return errors.New("--owner is required")
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			status := a.gate.Peek(cmd.Context(), owner)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d of %d sessions left\n", status.Remaining, status.Limit)
			if !status.ResetAt.IsZero() {
				fmt.Fprintf(out, "resets at %s\n", status.ResetAt.UTC().Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().String("owner", "", "owner id to inspect")
	return cmd
}

// --- history ---

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved conversations, newest first",
		Long: `List saved conversations, newest first.

Examples:
  pitchspeak history --owner alice
  pitchspeak history --all --limit 50
  pitchspeak history --owner alice --cursor 42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			all, _ := cmd.Flags().GetBool("all")
			limit, _ := cmd.Flags().GetInt("limit")
			cursor, _ := cmd.Flags().GetString("cursor")

			if owner == "" && !all {
				return errors.New("one of --owner or --all is required")
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if limit <= 0 {
				limit = a.cfg.HistoryPageSize
			}
			req := estimate.PageRequest{Cursor: cursor, Limit: limit}

			var page estimate.Page
			if all {
				page, err = a.store.ListAll(cmd.Context(), req)
			} else {
				page, err = a.store.ListByOwner(cmd.Context(), owner, req)
			}
			if err != nil {
				return err
			}

			printHistory(cmd.OutOrStdout(), page)
			return nil
		},
	}
	cmd.Flags().String("owner", "", "list this owner's conversations")
	cmd.Flags().Bool("all", false, "list every owner's conversations")
	cmd.Flags().Int("limit", 0, "page size (defaults to history_page_size)")
	cmd.Flags().String("cursor", "", "next-page cursor from a previous listing")
	return cmd
}

func printHistory(w io.Writer, page estimate.Page) {
	if len(page.Records) == 0 {
		fmt.Fprintln(w, "No conversations found.")
		return
	}
	for _, rec := range page.Records {
		fmt.Fprintf(w, "%s  %s  %-8s %s\n",
			rec.ID,
			rec.CreatedAt.UTC().Format("2006-01-02 15:04"),
			rec.Estimation.Complexity,
			truncate(rec.ProjectSummary, 60),
		)
	}
	if page.NextCursor != "" {
		fmt.Fprintf(w, "\nMore: --cursor %s\n", page.NextCursor)
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// --- show ---

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one saved conversation as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			rec, err := a.store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		},
	}
}

// --- export ---

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a saved conversation as a PDF report or Markdown",
		Long: `Export a saved conversation as a PDF report or Markdown.

Examples:
  pitchspeak export 0b7f3c1e-8f1a-4d59-9a43-3c8f4b1e2d10
  pitchspeak export 0b7f3c1e-8f1a-4d59-9a43-3c8f4b1e2d10 --format markdown --out exports/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			outDir, _ := cmd.Flags().GetString("out")

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			rec, err := a.store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			path, err := exportRecord(rec, format, outDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().String("format", "pdf", "export format: pdf or markdown")
	cmd.Flags().String("out", ".", "output directory")
	return cmd
}

func exportRecord(rec estimate.Record, format, outDir string) (string, error) {
	switch format {
	case "pdf":
		data, err := export.RenderPDF(rec.Result, rec.CreatedAt)
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
		path := filepath.Join(outDir, export.PDFFilename(rec.CreatedAt))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return "", fmt.Errorf("write pdf: %w", err)
		}
		return path, nil
	case "markdown", "md":
		return export.NewWriter(outDir).Write(rec)
	default:
		return "", fmt.Errorf("unknown export format %q: use pdf or markdown", format)
	}
}

// --- mcp ---

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve conversation history and quota tools over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := mcpserver.NewServer(mcpserver.Deps{
				Store:    a.store,
				Quota:    a.gate,
				Version:  version,
				PageSize: a.cfg.HistoryPageSize,
			})

			a.logger.Info("MCP stdio server started")
			err = mcpgo.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("mcp stdio server: %w", err)
			}
			return nil
		},
	}
}
