package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	goSession "github.com/MrEthical07/goSession"
	gsotel "github.com/MrEthical07/goSession/metrics/export/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// otelView collects the OpenTelemetry exporter on demand through a manual
// reader, so the shell can print what an OTLP pipeline would receive.
type otelView struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
	exporter *gsotel.Exporter
}

func newOTelView(client *goSession.Client) (*otelView, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	exporter, err := gsotel.New(provider.Meter("github.com/MrEthical07/goSession/cmd/gosession"), client)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}
	return &otelView{reader: reader, provider: provider, exporter: exporter}, nil
}

// Render returns one "name{attrs} value" line per data point, sorted.
func (v *otelView) Render(ctx context.Context) (string, error) {
	var rm metricdata.ResourceMetrics
	if err := v.reader.Collect(ctx, &rm); err != nil {
		return "", fmt.Errorf("collect: %w", err)
	}
	var lines []string
	emit := func(name string, dp metricdata.DataPoint[int64]) {
		var attrs []string
		for _, kv := range dp.Attributes.ToSlice() {
			attrs = append(attrs, string(kv.Key)+"="+kv.Value.Emit())
		}
		if len(attrs) > 0 {
			name += "{" + strings.Join(attrs, ",") + "}"
		}
		lines = append(lines, fmt.Sprintf("%s %d", name, dp.Value))
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					emit(m.Name, dp)
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					emit(m.Name, dp)
				}
			}
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n") + "\n", nil
}

func (v *otelView) Close(ctx context.Context) error {
	if v == nil {
		return nil
	}
	if err := v.exporter.Close(); err != nil {
		return err
	}
	return v.provider.Shutdown(ctx)
}
