package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"

	"github.com/grovelabs/stepflow"
	"github.com/grovelabs/stepflow/bus"
	stepflowotel "github.com/grovelabs/stepflow/otel"
	"github.com/grovelabs/stepflow/server"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}

	cmd.Flags().IntP("port", "p", 8080, "Listen port")
	cmd.Flags().String("host", "0.0.0.0", "Listen host")
	cmd.Flags().String("cors-origin", "*", "Allowed CORS origin")
	cmd.Flags().String("tls-cert", "", "TLS certificate file")
	cmd.Flags().String("tls-key", "", "TLS key file")
	cmd.Flags().Duration("read-timeout", 30*time.Second, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", 60*time.Second, "HTTP write timeout")
	cmd.Flags().Int64("max-body", 1<<20, "Max request body size in bytes")
	cmd.Flags().Duration("schedule-poll", 5*time.Second, "Schedule poll interval")
	cmd.Flags().Int("max-runs", 0, "Run registry capacity (default: engine default)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	corsOrigin, _ := cmd.Flags().GetString("cors-origin")
	readTimeout, _ := cmd.Flags().GetDuration("read-timeout")
	writeTimeout, _ := cmd.Flags().GetDuration("write-timeout")
	maxBody, _ := cmd.Flags().GetInt64("max-body")
	schedulePoll, _ := cmd.Flags().GetDuration("schedule-poll")
	maxRuns, _ := cmd.Flags().GetInt("max-runs")
	tlsCert, _ := cmd.Flags().GetString("tls-cert")
	tlsKey, _ := cmd.Flags().GetString("tls-key")

	logger := slog.Default()

	// Observability: spans per run/step via the globally registered providers,
	// trace context stamped onto outgoing events.
	tracing := stepflowotel.NewTracingHandler(otelapi.GetTracerProvider().Tracer("stepflow"))
	metrics, err := stepflowotel.NewMetricsHandler(otelapi.GetMeterProvider().Meter("stepflow"))
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	eb := bus.NewMemBus(bus.MemBusConfig{})
	es := bus.NewMemEventStore()
	scheduleStore := server.NewScheduleStore()

	apiServer := server.NewServer(server.ServerConfig{
		Schedules:  scheduleStore,
		Registry:   stepflow.NewRunRegistry(maxRuns),
		Bus:        eb,
		EventStore: es,
		Events:     stepflow.MultiEventHandler(tracing.Handle, metrics.Handle),
		EmitDecorator: func(emit stepflow.EventEmitter) stepflow.EventEmitter {
			return stepflowotel.EnrichEmitter(emit, tracing)
		},
		CORSOrigin: corsOrigin,
		MaxBody:    maxBody,
		Logger:     logger,
	})

	scheduler, err := server.NewScheduler(server.SchedulerConfig{
		Runner:       apiServer,
		Store:        scheduleStore,
		PollInterval: schedulePoll,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	scheduler.Start()
	defer func() {
		_ = scheduler.Stop(context.Background())
	}()

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      apiServer.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	// Signal handling
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(cmd.OutOrStdout(), "stepflow listening on %s\n", addr)
		if tlsCert != "" && tlsKey != "" {
			errCh <- httpServer.ListenAndServeTLS(tlsCert, tlsKey)
		} else {
			errCh <- httpServer.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(cmd.OutOrStdout(), "Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return exitError(exitRuntime, "shutdown error: %v", err)
		}
		_ = eb.Close()
		return nil
	case err := <-errCh:
		_ = eb.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitError(exitRuntime, "server error: %v", err)
		}
		return nil
	}
}
