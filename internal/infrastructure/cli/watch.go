package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/lokus-ai/lokus-plugins/internal/infrastructure/sse"
	"github.com/lokus-ai/lokus-plugins/internal/infrastructure/wiring"
	"github.com/lokus-ai/lokus-plugins/internal/infrastructure/ws"
	"github.com/lokus-ai/lokus-plugins/pkg/domain/events"
	"github.com/lokus-ai/lokus-plugins/pkg/infrastructure/dashboard"
	"github.com/spf13/cobra"
)

var (
	watchDebounce time.Duration
	watchListen   string
	watchSecret   string
	watchTUI      bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the plugin directory and reload plugins as they change",
	Long: `Watch the plugin directory recursively. Every plugin whose manifest or
built bundle changes is reloaded once the debounce window has passed without
further changes.

With --listen the status page, its JSON API and the live event streams
(/events for server-sent events, /ws for WebSocket) are served as well.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("debounce") {
			cfg.Debounce = watchDebounce
		}
		if watchListen != "" {
			cfg.Listen = watchListen
		}
		if err := cfg.Validate(); err != nil {
			return NewCLIError("invalid settings", "Durations must not be negative", err)
		}

		services, err := loadServices(cfg)
		if err != nil {
			return MapError(err)
		}
		defer services.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.Listen != "" {
			shutdown, err := serveDashboard(ctx, cfg.Listen, watchSecret, services)
			if err != nil {
				return err
			}
			defer shutdown()
		}

		if watchTUI {
			return runDashboard(ctx, services)
		}

		out := cmd.OutOrStdout()
		services.Workspace.Publisher.Subscribe(eventPrinter(out))

		if err := services.Controller.Start(ctx); err != nil {
			return MapError(err)
		}
		_, _ = fmt.Fprintf(out, "Watching %s for plugin changes (debounce %s). Press Ctrl+C to stop.\n",
			services.Workspace.Root, cfg.Debounce)

		return MapError(services.Controller.Wait(ctx))
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "quiet period before reloading (overrides debounce)")
	watchCmd.Flags().StringVar(&watchListen, "listen", "", "serve the status page on this address, e.g. 127.0.0.1:7777")
	watchCmd.Flags().StringVar(&watchSecret, "secret", "", "require HMAC-signed manual reload requests")
	watchCmd.Flags().BoolVar(&watchTUI, "tui", false, "show the interactive dashboard")
	RootCmd.AddCommand(watchCmd)
}

// serveDashboard starts the status server in the background and returns a
// function that shuts it down.
func serveDashboard(ctx context.Context, addr, secret string, services *wiring.AppServices) (func(), error) {
	logger := slog.Default().With("component", "dashboard")
	publisher := services.Workspace.Publisher

	server, err := dashboard.NewServer(addr, services, dashboard.Options{
		Events: sse.NewSSEHandler(publisher),
		Socket: ws.NewHandler(publisher, logger),
		Secret: secret,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("dashboard server failed", "addr", addr, "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("dashboard shutdown failed", "error", err)
		}
		wg.Wait()
	}, nil
}

var (
	labelStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// eventPrinter writes one line per event. Publishers may call it from
// several goroutines.
func eventPrinter(w io.Writer) events.Handler {
	var mu sync.Mutex
	return func(e *events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		_, err := fmt.Fprintln(w, formatEvent(e))
		return err
	}
}

func formatEvent(e *events.Event) string {
	ts := dimStyle.Render(e.Timestamp.Format("15:04:05"))

	switch e.Type {
	case events.EventTypeReloaded:
		return fmt.Sprintf("%s %s %s (%dms)", ts, statusDone.Render("reloaded"), labelStyle.Render(e.Plugin), e.DurationMS)
	case events.EventTypeReloadFailed:
		return fmt.Sprintf("%s %s %s: %s", ts, statusErr.Render("failed"), labelStyle.Render(e.Plugin), e.Error)
	case events.EventTypeReloadSkipped:
		return fmt.Sprintf("%s %s %s: %s", ts, statusWIP.Render("skipped"), labelStyle.Render(e.Plugin), e.Error)
	case events.EventTypeWatcherStarted:
		return fmt.Sprintf("%s watcher started on %s", ts, e.Metadata["root"])
	case events.EventTypeWatcherStopped:
		if e.Error != "" {
			return fmt.Sprintf("%s %s: %s", ts, statusErr.Render("watcher stopped"), e.Error)
		}
		return fmt.Sprintf("%s watcher stopped", ts)
	default:
		return fmt.Sprintf("%s %s %s", ts, e.Type, e.Plugin)
	}
}
