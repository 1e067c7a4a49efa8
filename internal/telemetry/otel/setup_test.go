package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	for _, endpoint := range []string{"", "   "} {
		p, err := NewProviders(context.Background(), Config{Endpoint: endpoint, ServiceName: "test-service"}, nil)
		if err != nil {
			t.Fatalf("NewProviders(%q): %v", endpoint, err)
		}
		if p.TracerProvider == nil || p.MeterProvider == nil || p.LoggerProvider == nil {
			t.Fatalf("NewProviders(%q) returned nil providers: %+v", endpoint, p)
		}
		if err := p.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	}
}

func TestNewProviders_InvalidEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
	}{
		{"invalid characters", "://invalid"},
		{"malformed URL", "http://[invalid"},
		{"missing host", "http://"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProviders(context.Background(), Config{Endpoint: tt.endpoint}, nil); err == nil {
				t.Errorf("NewProviders(%q) should fail", tt.endpoint)
			}
		})
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name         string
		endpoint     string
		insecure     bool
		wantHostPort string
		wantInsecure bool
	}{
		{"no scheme", "localhost:4317", false, "localhost:4317", true},
		{"http", "http://collector:4317", false, "collector:4317", true},
		{"https", "https://collector:4317", false, "collector:4317", false},
		{"https with insecure override", "https://collector:4317", true, "collector:4317", true},
		{"path dropped", "https://collector:4317/v1/traces", false, "collector:4317", false},
		{"surrounding whitespace", "  collector:4317  ", false, "collector:4317", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEndpoint(tt.endpoint, tt.insecure)
			if err != nil {
				t.Fatalf("ParseEndpoint: %v", err)
			}
			if got.HostPort != tt.wantHostPort || got.Insecure != tt.wantInsecure {
				t.Errorf("ParseEndpoint(%q, %v) = %+v, want {%s %v}", tt.endpoint, tt.insecure, got, tt.wantHostPort, tt.wantInsecure)
			}
		})
	}
}

func TestNewResource(t *testing.T) {
	res, err := newResource(Config{ServiceName: "control-plane", Environment: "staging"})
	if err != nil {
		t.Fatalf("newResource: %v", err)
	}
	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["service.name"] != "control-plane" {
		t.Errorf("service.name = %q", attrs["service.name"])
	}
	if attrs["deployment.environment.name"] != "staging" {
		t.Errorf("deployment.environment.name = %q", attrs["deployment.environment.name"])
	}
}

func TestSetGlobal(t *testing.T) {
	prevTP, prevMP, prevProp := otel.GetTracerProvider(), otel.GetMeterProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
		otel.SetTextMapPropagator(prevProp)
	})

	p, err := NewProviders(context.Background(), Config{}, nil)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	p.SetGlobal()
	if otel.GetTracerProvider() != p.TracerProvider {
		t.Error("global TracerProvider not set")
	}
	if otel.GetMeterProvider() != p.MeterProvider {
		t.Error("global MeterProvider not set")
	}
	carrier := propagation.MapCarrier{}
	ctx, span := p.TracerProvider.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if carrier.Get("traceparent") == "" {
		t.Error("traceparent not propagated")
	}
}
