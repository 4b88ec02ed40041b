package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/cvsift/internal/analysis"
	"github.com/kalambet/cvsift/internal/api"
	"github.com/kalambet/cvsift/internal/config"
	"github.com/kalambet/cvsift/internal/match"
	"github.com/kalambet/cvsift/internal/run"
)

// --- fetch ---

var fetchCmd = &cobra.Command{
	Use:   "fetch <file-id>",
	Short: "Download the service's stored copy of a document",
	Long: `Download the service's stored copy of a document by the file ID shown
next to each result.

Examples:
  cvsift fetch 3f2a9c
  cvsift fetch 3f2a9c --output alice.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		return runFetch(cmd.Context(), args[0], output)
	},
}

func init() {
	fetchCmd.Flags().StringP("output", "o", "", "output file path (default: <file-id> with an extension for the document type)")
}

func runFetch(ctx context.Context, fileID, output string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	data, contentType, err := client.FetchDocument(ctx, fileID)
	if errors.Is(err, analysis.ErrDocumentNotFound) {
		return fmt.Errorf("no document with file ID %q on %s", fileID, client.BaseURL())
	}
	if err != nil {
		return err
	}

	if output == "" {
		output = filepath.Base(fileID) + extensionFor(contentType)
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("writing document: %w", err)
	}
	printSuccess("Saved %s (%d bytes)", output, len(data))
	return nil
}

func extensionFor(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	switch strings.TrimSpace(mt) {
	case match.MediaTypePDF:
		return ".pdf"
	case match.MediaTypeDOCX:
		return ".docx"
	}
	return ""
}

// --- health ---

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the analysis service is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHealth(cmd.Context())
	},
}

func runHealth(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	printStatus("Service", "%s", client.BaseURL())
	h, err := client.Health(ctx)
	if err != nil {
		printStatus("Status", "%s", colorize(colorRed, "unreachable"))
		return fmt.Errorf("service not reachable: %w", err)
	}
	printStatus("Status", "%s", colorize(colorGreen, h.Status))
	mode := "streaming"
	if !cfg.Service.Streaming {
		mode = "single response"
	}
	printStatus("Mode", "%s", mode)
	return nil
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve cvsift tools over MCP (stdio transport)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP(cmd.Context(), os.Stdin, os.Stdout)
	},
}

func runMCP(ctx context.Context, in io.Reader, out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// stdout carries the protocol.
	closeLog, err := setupLogging(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	session := run.NewSession(client, run.Options{
		Streaming: cfg.Service.Streaming,
		Sort:      cfg.SortKey(),
		Filter:    cfg.Filter(),
	})
	defer session.Stop()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Session:   session,
		Documents: client,
		Intake:    cfg.IntakeOptions(),
		Version:   version,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	if err := stdioSrv.Listen(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		printConfig(cmd.OutOrStdout(), cfg)
		return nil
	},
}

func printConfig(w io.Writer, cfg config.Config) {
	for _, k := range config.ShowAll(cfg) {
		fmt.Fprintf(w, "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
	}
	fmt.Fprintf(w, "\nThe API key is read from %s.\n", config.SecretSource())
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value.

Valid keys: ` + strings.Join(config.ValidKeys(), ", "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		if key == "service.api_key" {
			printSuccess("Stored %s", key)
			return nil
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
