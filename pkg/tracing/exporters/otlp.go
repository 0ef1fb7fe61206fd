package exporters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// OTLPConfig points fern's spans at a collector.
type OTLPConfig struct {
	// Endpoint is host:port, e.g. "localhost:4317" for gRPC or "localhost:4318" for HTTP.
	Endpoint string
	// Protocol is "grpc" or "http". Empty infers it from the endpoint port.
	Protocol string
	Insecure bool
	Headers  map[string]string
	Timeout  time.Duration
}

// ResolveProtocol returns the configured protocol, falling back to http for the
// conventional 4318 port and grpc otherwise.
func (c OTLPConfig) ResolveProtocol() string {
	if c.Protocol != "" {
		return strings.ToLower(c.Protocol)
	}
	if strings.HasSuffix(c.Endpoint, ":4318") {
		return "http"
	}
	return "grpc"
}

func (c OTLPConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return c.Timeout
}

// NewOTLPExporter dials the collector over the resolved protocol.
func NewOTLPExporter(ctx context.Context, config OTLPConfig) (*otlptrace.Exporter, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("otlp exporter: endpoint is required")
	}

	switch protocol := config.ResolveProtocol(); protocol {
	case "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.Endpoint), otlptracegrpc.WithTimeout(config.timeout())}
		if config.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure(), otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		}
		if len(config.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(config.Headers))
		}
		return otlptracegrpc.New(ctx, opts...)
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(config.Endpoint), otlptracehttp.WithTimeout(config.timeout())}
		if config.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(config.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(config.Headers))
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("otlp exporter: protocol %q is neither grpc nor http", protocol)
	}
}
