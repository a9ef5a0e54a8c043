package grpc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rbroggi/userlifecycle/internal/core/model"
	"github.com/rbroggi/userlifecycle/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func check(t *testing.T, h *HealthService, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := h.server.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestNewHealthService_InvalidArgs(t *testing.T) {
	_, err := NewHealthService(HealthServiceArgs{Interval: time.Second})
	assert.Error(t, err)

	_, err = NewHealthService(HealthServiceArgs{Pinger: ports.PingerFunc(func(context.Context) error { return nil })})
	assert.Error(t, err)
}

func TestHealthService_Probe(t *testing.T) {
	var down atomic.Bool
	h, err := NewHealthService(HealthServiceArgs{
		Pinger: ports.PingerFunc(func(context.Context) error {
			if down.Load() {
				return errors.New("connection refused")
			}
			return nil
		}),
		Interval: time.Second,
	})
	require.NoError(t, err)
	assert.False(t, h.Serving())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, h, ""))

	assert.True(t, h.Probe(context.Background()))
	assert.True(t, h.Serving())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, h, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, h, ServiceName))

	down.Store(true)
	assert.False(t, h.Probe(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, h, ServiceName))
}

func TestHealthService_RunStopsServingOnCancel(t *testing.T) {
	h, err := NewHealthService(HealthServiceArgs{
		Pinger:   ports.PingerFunc(func(context.Context) error { return nil }),
		Interval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	require.Eventually(t, h.Serving, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.False(t, h.Serving())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, h, ""))
}

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		code        codes.Code
		wantMessage string
	}{
		{name: "nil", err: nil, code: codes.OK},
		{name: "not found", err: fmt.Errorf("user with id 1: %w", model.ErrNotFound), code: codes.NotFound, wantMessage: "msg"},
		{name: "already exists", err: fmt.Errorf("x: %w", model.ErrAlreadyExists), code: codes.AlreadyExists, wantMessage: "msg"},
		{name: "anything else", err: errors.New("db down"), code: codes.Internal, wantMessage: "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := StatusFromError(tt.err, "msg")
			assert.Equal(t, tt.code, st.Code())
			assert.Equal(t, tt.wantMessage, st.Message())
		})
	}
}
