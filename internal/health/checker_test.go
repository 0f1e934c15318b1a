package health

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

// mockPolicyChecker implements PolicyChecker for tests.
type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

func TestChecker_Check(t *testing.T) {
	down := errors.New("connection refused")
	tests := []struct {
		name        string
		db, cache   Pinger
		policy      PolicyChecker
		want        Report
		wantHealthy bool
	}{
		{"all disabled", nil, nil, nil, Report{StatusDisabled, StatusDisabled, StatusDisabled}, true},
		{"all up", &mockPinger{}, &mockPinger{}, &mockPolicyChecker{}, Report{StatusUp, StatusUp, StatusUp}, true},
		{"db down", &mockPinger{pingErr: down}, nil, &mockPolicyChecker{}, Report{StatusDown, StatusDisabled, StatusUp}, false},
		{"cache down", &mockPinger{}, &mockPinger{pingErr: down}, nil, Report{StatusUp, StatusDown, StatusDisabled}, false},
		{"policy down", nil, nil, &mockPolicyChecker{healthErr: errors.New("rego compile failed")}, Report{StatusDisabled, StatusDisabled, StatusDown}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewChecker(tt.db, tt.cache, tt.policy).Check(context.Background())
			if got != tt.want {
				t.Errorf("Check = %+v, want %+v", got, tt.want)
			}
			if got.Healthy() != tt.wantHealthy {
				t.Errorf("Healthy = %v, want %v", got.Healthy(), tt.wantHealthy)
			}
		})
	}
}

func TestRedisPinger(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	if err := RedisPinger(client).PingContext(context.Background()); err != nil {
		t.Fatalf("PingContext: %v", err)
	}
	mr.Close()
	if err := RedisPinger(client).PingContext(context.Background()); err == nil {
		t.Error("expected error after redis stopped")
	}
}
