package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRunWorstStatusWins(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   Status
	}{
		{"all up", map[string]Check{
			"universities": Ready(func() bool { return true }, nil),
		}, StatusUp},
		{"cache missing", map[string]Check{
			"universities": Ready(func() bool { return true }, func() string { return "3 items" }),
			"redis":        Ping(nil),
		}, StatusDegraded},
		{"index not built", map[string]Check{
			"universities": Ready(func() bool { return false }, nil),
			"redis":        Ping(func(ctx context.Context) error { return errors.New("refused") }),
		}, StatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for name, check := range tt.checks {
				c.Register(name, check)
			}
			report := c.Run(context.Background())
			if report.Status != tt.want {
				t.Errorf("status = %q, want %q (%+v)", report.Status, tt.want, report.Components)
			}
			if len(report.Components) != len(tt.checks) {
				t.Errorf("components = %d, want %d", len(report.Components), len(tt.checks))
			}
		})
	}
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("redis", Ping(nil))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("degraded status code = %d, want 200", rec.Code)
	}

	c.Register("programs", Ready(func() bool { return false }, nil))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("down status code = %d, want 503", rec.Code)
	}
}
