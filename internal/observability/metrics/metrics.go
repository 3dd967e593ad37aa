package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	costRowsIngested metric.Int64Counter
	invoiceRuns      metric.Int64Counter
	invoicesIssued   metric.Int64Counter
	creditsApplied   metric.Int64Counter
	rateLimitAllowed metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "cirrus"
	}
	meter := provider.Meter(name)

	costRowsIngested, err := meter.Int64Counter("cirrus_cost_rows_ingested_total")
	if err != nil {
		return nil, err
	}
	invoiceRuns, err := meter.Int64Counter("cirrus_invoice_runs_total")
	if err != nil {
		return nil, err
	}
	invoicesIssued, err := meter.Int64Counter("cirrus_invoices_issued_total")
	if err != nil {
		return nil, err
	}
	creditsApplied, err := meter.Int64Counter("cirrus_credit_applications_total")
	if err != nil {
		return nil, err
	}
	rateLimitAllowed, err := meter.Int64Counter("cirrus_rate_limit_allowed_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("cirrus_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}
	return &Metrics{
		costRowsIngested: costRowsIngested,
		invoiceRuns:      invoiceRuns,
		invoicesIssued:   invoicesIssued,
		creditsApplied:   creditsApplied,
		rateLimitAllowed: rateLimitAllowed,
		rateLimitDenied:  rateLimitDenied,
	}, nil
}

// RecordCostRowsIngested increments ingested cost row counts.
func (m *Metrics) RecordCostRowsIngested(ctx context.Context, provider string, rows int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("provider", strings.TrimSpace(provider)))
	m.costRowsIngested.Add(ctx, rows, metric.WithAttributes(attrs...))
}

// RecordInvoiceRun increments invoice run counts by terminal status.
func (m *Metrics) RecordInvoiceRun(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.invoiceRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInvoicesIssued increments issued invoice counts.
func (m *Metrics) RecordInvoicesIssued(ctx context.Context, currency string, count int64) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("currency", strings.TrimSpace(currency)))
	m.invoicesIssued.Add(ctx, count, metric.WithAttributes(attrs...))
}

// RecordCreditApplication increments credit ledger application counts.
func (m *Metrics) RecordCreditApplication(ctx context.Context, creditType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("credit_type", strings.TrimSpace(creditType)))
	m.creditsApplied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitAllowed increments rate limit allow counts.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status_code": {},
	"status":      {},
	"provider":    {},
	"currency":    {},
	"credit_type": {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
