package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"invoicer/internal/auth"
	"invoicer/internal/core"
	"invoicer/internal/export"
	"invoicer/internal/pdf"
	"invoicer/internal/ports"
	"invoicer/internal/render"
	"invoicer/internal/services"
)

func newTokenCommand(e *env) *cobra.Command {
	var tenant, subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.cfg.AuthSecret == "" {
				return fmt.Errorf("AUTH_SECRET is not set; the server runs in dev mode and needs no token")
			}
			if ttl <= 0 {
				ttl = e.cfg.TokenTTL
			}
			tok, err := auth.New(e.cfg.AuthSecret, "", ttl).IssueToken(tenant, subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant the token grants access to")
	cmd.Flags().StringVar(&subject, "subject", "invoicectl", "User or service the token is issued to")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default TOKEN_TTL)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newRenderCommand(e *env) *cobra.Command {
	var tenant, layout, out string
	var asPDF bool
	cmd := &cobra.Command{
		Use:   "render <document-id>",
		Short: "Render a document to printable HTML or PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := e.open(ctx); err != nil {
				return err
			}
			d, err := e.app.Documents.Get(ctx, tenant, args[0])
			if err != nil {
				return err
			}
			html, err := e.app.Renderer.RenderBytes(d, render.Options{Layout: layout})
			if err != nil {
				return err
			}

			if out == "" {
				out = render.Filename(d)
				if !asPDF {
					out = out[:len(out)-len(".pdf")] + ".html"
				}
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()

			if asPDF {
				exporter := pdf.NewExporter(e.cfg.BrowserBin, e.cfg.PDFTimeout, e.logger)
				defer exporter.Close()
				err = exporter.RenderPDF(ctx, html, f)
			} else {
				_, err = f.Write(html)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return f.Close()
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Owner of the document")
	cmd.Flags().StringVar(&layout, "template", "", "Layout id overriding the document's own")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default derived from the document number)")
	cmd.Flags().BoolVar(&asPDF, "pdf", false, "Print to PDF through the headless browser")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newExportCommand(e *env) *cobra.Command {
	var tenant, out string
	var kinds, statuses []string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a tenant's documents and KPIs to XLSX",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := e.open(ctx); err != nil {
				return err
			}
			f := core.Filter{TenantID: tenant}
			for _, k := range kinds {
				if !core.Kind(k).IsValid() {
					return fmt.Errorf("%w: %q", core.ErrInvalidKind, k)
				}
				f.Kinds = append(f.Kinds, core.Kind(k))
			}
			for _, s := range statuses {
				f.Statuses = append(f.Statuses, core.Status(s))
			}

			docs, err := e.app.Dashboard.All(ctx, f, core.SortIssueDate, true)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := export.WriteDocumentsXLSX(&buf, docs, core.ComputeKPIs(docs, time.Now())); err != nil {
				return err
			}
			if err := writeOut(cmd.OutOrStdout(), out, buf.Bytes()); err != nil {
				return err
			}
			if out != "-" {
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d documents to %s\n", len(docs), out)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant to export")
	cmd.Flags().StringVarP(&out, "out", "o", "documents.xlsx", "Output file, - for stdout")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Only these kinds")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only these statuses")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func newSweepCommand(e *env) *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark lapsed invoices overdue and lapsed estimates expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := e.open(ctx); err != nil {
				return err
			}
			tenants, _ := e.res.Store.(ports.TenantLister)
			p := services.NewOverdueProcessor(e.app.Documents, e.res.Store, tenants)

			var (
				res services.SweepResult
				err error
			)
			if tenant != "" {
				res, err = p.SweepTenant(ctx, tenant, time.Now())
			} else {
				if tenants == nil {
					return fmt.Errorf("backend %s cannot list tenants; pass --tenant", e.cfg.DataBackend)
				}
				res, err = p.Sweep(ctx, time.Now())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tenants=%d checked=%d moved=%d failed=%d\n",
				res.Tenants, res.Checked, res.Moved, res.Failed)
			return err
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Only sweep this tenant")
	return cmd
}

func newSeedCommand(e *env) *cobra.Command {
	var tenant, file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create documents from a JSON or YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			docs, err := decodeSeed(file, raw)
			if err != nil {
				return err
			}
			if err := e.open(ctx); err != nil {
				return err
			}
			for i, d := range docs {
				created, err := e.app.Documents.Create(ctx, tenant, d)
				if err != nil {
					return fmt.Errorf("document %d: %w", i+1, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", created.ID, created.Kind, created.Number)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant that owns the seeded documents")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Seed file (.json, .yaml or .yml)")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func writeOut(stdout io.Writer, path string, data []byte) error {
	if path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
