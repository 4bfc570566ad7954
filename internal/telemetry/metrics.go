package telemetry

import (
	"context"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"

	"go.opentelemetry.io/contrib/detectors/aws/ecs"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/IliaW/hotel-crawler/config"
	"github.com/google/uuid"
)

var meter metric.Meter

type MetricsProvider struct {
	KafkaMetrics *KafkaMetrics
	CrawlMetrics *CrawlMetrics
	SeedMetrics  *SeedMetrics
	Close        func()
}

type KafkaMetrics struct {
	SuccessMsgCnt func(count int64)
	FailMsgCnt    func(count int64)
}

type CrawlMetrics struct {
	PageHandledCnt    func(count int64)
	PageFailedCnt     func(count int64)
	RetirementCnt     func(count int64)
	ListingEmittedCnt func(count int64)
	SentinelCnt       func(count int64)
}

type SeedMetrics struct {
	SuccessMsgCnt func(count int64)
	FailMsgCnt    func(count int64)
}

func SetupMetrics(ctx context.Context, cfg *config.Config) *MetricsProvider {
	metricsProvider := new(MetricsProvider)
	var meterProvider *sdkmetric.MeterProvider

	if cfg.TelemetrySettings.Enabled {
		r, err := newResource(cfg)
		if err != nil {
			slog.Error("failed to get resource.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		exporter, err := newMetricExporter(ctx, cfg.TelemetrySettings)
		if err != nil {
			slog.Error("failed to get metric exporter.", slog.String("err", err.Error()))
			os.Exit(1)
		}
		meterProvider = newMeterProvider(exporter, *r)
		otel.SetMeterProvider(meterProvider)
	}

	meter = otel.Meter(cfg.ServiceName)
	metricsProvider.Close = func() {
		if meterProvider != nil {
			err := meterProvider.Shutdown(ctx)
			if err != nil {
				slog.Error("failed to shutdown metrics provider.", slog.String("err", err.Error()))
			}
		}
	}

	// Set up kafka metrics
	kafkaSuccessCounter, err := meter.Int64Counter("hotel-crawler.kafka.send.success",
		metric.WithDescription("The number of records the kafka sink successfully wrote"),
		metric.WithUnit("{records}"))
	kafkaFailCounter, err := meter.Int64Counter("hotel-crawler.kafka.send.fail",
		metric.WithDescription("The number of records the kafka sink could not write"),
		metric.WithUnit("{records}"))
	if err != nil {
		slog.Error("failed to create telemetry counters for kafka.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	metricsProvider.KafkaMetrics = &KafkaMetrics{
		SuccessMsgCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				kafkaSuccessCounter.Add(ctx, count)
			}
		},
		FailMsgCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				kafkaFailCounter.Add(ctx, count)
			}
		},
	}

	// Set up crawl metrics
	pageHandledCounter, err := meter.Int64Counter("hotel-crawler.pages.handled",
		metric.WithDescription("The number of pages handled to completion"),
		metric.WithUnit("{pages}"))
	pageFailedCounter, err := meter.Int64Counter("hotel-crawler.pages.failed",
		metric.WithDescription("The number of page-handling attempts that failed"),
		metric.WithUnit("{pages}"))
	retirementCounter, err := meter.Int64Counter("hotel-crawler.identity.retirements",
		metric.WithDescription("The number of browser identities retired as compromised"),
		metric.WithUnit("{identities}"))
	listingCounter, err := meter.Int64Counter("hotel-crawler.listings.emitted",
		metric.WithDescription("The number of extracted listings emitted to the sink"),
		metric.WithUnit("{records}"))
	sentinelCounter, err := meter.Int64Counter("hotel-crawler.listings.sentinel",
		metric.WithDescription("The number of all-null sentinel records emitted for failed requests"),
		metric.WithUnit("{records}"))
	if err != nil {
		slog.Error("failed to create telemetry counters for crawl.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	metricsProvider.CrawlMetrics = &CrawlMetrics{
		PageHandledCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				pageHandledCounter.Add(ctx, count)
			}
		},
		PageFailedCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				pageFailedCounter.Add(ctx, count)
			}
		},
		RetirementCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				retirementCounter.Add(ctx, count)
			}
		},
		ListingEmittedCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				listingCounter.Add(ctx, count)
			}
		},
		SentinelCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				sentinelCounter.Add(ctx, count)
			}
		},
	}

	// Set up seed-intake metrics
	seedSuccessCounter, err := meter.Int64Counter("hotel-crawler.seeds.success",
		metric.WithDescription("The number of seed rows successfully ingested"),
		metric.WithUnit("{messages}"))
	seedFailCounter, err := meter.Int64Counter("hotel-crawler.seeds.fail",
		metric.WithDescription("The number of seed rows that could not be ingested"),
		metric.WithUnit("{messages}"))
	if err != nil {
		slog.Error("failed to create telemetry counters for seed intake.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	metricsProvider.SeedMetrics = &SeedMetrics{
		SuccessMsgCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				seedSuccessCounter.Add(ctx, count)
			}
		},
		FailMsgCnt: func(count int64) {
			if cfg.TelemetrySettings.Enabled {
				seedFailCounter.Add(ctx, count)
			}
		},
	}

	return metricsProvider
}

func newResource(cfg *config.Config) (*resource.Resource, error) {
	ecsResourceDetector := ecs.NewResourceDetector()
	ecsResource, err := ecsResourceDetector.Detect(context.Background())
	if err != nil {
		slog.Error("ecs detection failed", slog.String("err", err.Error()))
	}
	mergedResource, err := resource.Merge(ecsResource, resource.Default())
	if err != nil {
		slog.Error("failed to merge resources", slog.String("err", err.Error()))
	}
	keyValue, found := ecsResource.Set().Value("container.id")
	var serviceId string
	if found {
		serviceId = keyValue.AsString()
	} else {
		serviceId = uuid.New().String()
	}
	return resource.Merge(mergedResource,
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Env),
			semconv.ServiceInstanceID(serviceId),
		))
}

func newMetricExporter(ctx context.Context, cfg *config.TelemetryConfig) (sdkmetric.Exporter, error) {
	return otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(cfg.CollectorUrl),
		otlpmetrichttp.WithInsecure())
}

func newMeterProvider(meterExporter sdkmetric.Exporter, resource resource.Resource) *sdkmetric.MeterProvider {
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(meterExporter)),
		sdkmetric.WithResource(&resource),
	)
	return meterProvider
}
