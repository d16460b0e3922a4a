// Package cmd implements the ecr-image-tag command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/input-output-hk/ecr-image-tag/identity"
	"github.com/input-output-hk/ecr-image-tag/internal/telemetry"
	"github.com/input-output-hk/ecr-image-tag/publish"
	"github.com/input-output-hk/ecr-image-tag/services/aws/ecr"
)

var version = "dev"

// Process configuration keys read alongside the build identity.
const (
	KeyRegion         = "AWS_DEFAULT_REGION"
	KeyLogLevel       = "LOG_LEVEL"
	KeyLogFormat      = "LOG_FORMAT"
	KeyTracesExporter = "OTEL_TRACES_EXPORTER"
	KeyOTLPEndpoint   = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

const shutdownTimeout = 5 * time.Second

// registryFactory builds the registry the coordinator talks to.
type registryFactory func(ctx context.Context, region string, logger *slog.Logger) (publish.Registry, error)

type app struct {
	source      identity.Source
	logger      *slog.Logger
	newRegistry registryFactory
	stderr      io.Writer
}

func newECRRegistry(ctx context.Context, region string, logger *slog.Logger) (publish.Registry, error) {
	client, err := ecr.NewClient(ctx, ecr.WithRegion(region), ecr.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return client, nil
}

func newRootCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ecr-image-tag",
		Short: "Tag a freshly built image in Amazon ECR",
		Long: `ecr-image-tag points every tag derived from the current build at the image
pushed under the build version, replacing stale mutable tags.

The build is described by environment variables:

  APPLICATION          repository name; underscores become hyphens
  IMAGE_NAME           repository name used verbatim, overrides APPLICATION
  COMMIT               40 character commit hash or semantic version
  IMAGE_TAG            overrides COMMIT
  ENVIRONMENT          deployment environment label (optional)
  AWS_DEFAULT_REGION   AWS region (default: SDK chain, then eu-north-1)

Logging and tracing are controlled by LOG_LEVEL, LOG_FORMAT,
OTEL_TRACES_EXPORTER and OTEL_EXPORTER_OTLP_ENDPOINT.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context())
		},
	}
}

func (a *app) lookup(key string) string {
	v, _ := a.source.Lookup(key)
	return v
}

func (a *app) run(ctx context.Context) error {
	provider, err := telemetry.NewProvider(ctx, telemetry.TraceConfig{
		Exporter:     a.lookup(KeyTracesExporter),
		OTLPEndpoint: a.lookup(KeyOTLPEndpoint),
		Writer:       a.stderr,
	})
	if err != nil {
		return fmt.Errorf("configure tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if shutdownErr := provider.Shutdown(shutdownCtx); shutdownErr != nil {
			a.logger.Warn("failed to flush traces", "error", shutdownErr)
		}
	}()

	id, err := identity.Load(a.source)
	if err != nil {
		return fmt.Errorf("load build identity: %w", err)
	}

	registry, err := a.newRegistry(ctx, a.lookup(KeyRegion), a.logger)
	if err != nil {
		return fmt.Errorf("create registry client: %w", err)
	}

	coordinator := publish.New(registry,
		publish.WithLogger(a.logger),
		publish.WithTracer(provider.Tracer()),
	)
	return coordinator.Run(ctx, id)
}

// Execute runs the root command against the process environment. A
// returned error has already been logged.
func Execute() error {
	source := identity.NewEnvSource(
		identity.KeyEnvironment,
		identity.KeyApplication,
		identity.KeyImageName,
		identity.KeyImageTag,
		identity.KeyCommit,
		KeyRegion,
		KeyLogLevel,
		KeyLogFormat,
		KeyTracesExporter,
		KeyOTLPEndpoint,
	)

	a := &app{
		source:      source,
		newRegistry: newECRRegistry,
		stderr:      os.Stderr,
	}
	a.logger = telemetry.NewLogger(os.Stderr, telemetry.LogConfig{
		Level:  a.lookup(KeyLogLevel),
		Format: a.lookup(KeyLogFormat),
	})
	slog.SetDefault(a.logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(a).ExecuteContext(ctx); err != nil {
		a.logger.Error("ecr-image-tag failed", "error", err)
		return err
	}
	return nil
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
}
