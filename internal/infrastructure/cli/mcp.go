package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	inframcp "github.com/lokus-ai/lokus-plugins/internal/infrastructure/mcp"
	"github.com/spf13/cobra"
)

var (
	mcpTransport string
	mcpAddr      string
	mcpWatch     bool
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the Lokus plugins MCP server",
	Long: `Serve the plugin tools (list, info, validate, install, uninstall, enable,
disable, reload, status, history, classify) to MCP clients. With --watch the plugin directory is watched while
the server runs, so editor-driven rebuilds are reloaded too.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport := strings.ToLower(mcpTransport)
		switch transport {
		case "", "stdio", "http", "ws", "websocket":
		default:
			return NewCLIError(fmt.Sprintf("unsupported transport: %s", mcpTransport), "Use stdio, http or ws", nil)
		}
		if os.Getenv("LOKUS_SKIP_MCP_START") == "true" {
			return nil
		}

		services, err := loadServicesFromFlags()
		if err != nil {
			return MapError(err)
		}
		defer services.Close()

		server, err := inframcp.NewServer(services)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if mcpWatch {
			if err := services.Controller.Start(ctx); err != nil {
				return MapError(err)
			}
			defer services.Controller.Stop()
			go func() {
				if err := services.Controller.Wait(ctx); err != nil {
					slog.Error("plugin watch stopped, reloads now only run on request", "error", err)
				}
			}()
		}

		switch transport {
		case "http":
			err = server.ServeHTTP(ctx, mcpAddr)
		case "ws", "websocket":
			err = server.ServeWebSocket(ctx, mcpAddr)
		default:
			err = server.ServeStdio(ctx)
		}
		if err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

func init() {
	mcpCmd.Flags().StringVar(&mcpTransport, "transport", "stdio", "Transport to use (stdio, http, ws)")
	mcpCmd.Flags().StringVar(&mcpAddr, "addr", ":8090", "Address for http/ws transports")
	mcpCmd.Flags().BoolVar(&mcpWatch, "watch", false, "Also watch the plugin directory while serving")
	RootCmd.AddCommand(mcpCmd)

	inframcp.Version = Version
	inframcp.BuildCommit = Commit
	inframcp.BuildDate = Date
}
