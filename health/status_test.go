package health

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	h := NewHealthy("store", "ok")
	assert.True(t, h.Healthy)
	assert.True(t, h.IsHealthy())
	assert.False(t, h.Timestamp.IsZero())

	d := NewDegraded("store", "slow")
	assert.False(t, d.Healthy)
	assert.True(t, d.IsDegraded())

	u := NewUnhealthy("store", "down")
	assert.False(t, u.Healthy)
	assert.True(t, u.IsUnhealthy())
}

func TestFromError(t *testing.T) {
	ok := FromError("store", nil)
	assert.True(t, ok.IsHealthy())
	assert.Equal(t, "store", ok.Component)

	bad := FromError("store", errors.New("dial tcp 10.0.0.7:6379: connection refused"))
	assert.True(t, bad.IsUnhealthy())
	assert.Equal(t, "dial tcp [IP][PORT]: connection refused", bad.Message)
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want string
	}{
		{"none", nil, StatusHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StatusHealthy},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StatusDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("dupguard", tt.subs)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, "dupguard", got.Component)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestAggregate_CopiesSubStatuses(t *testing.T) {
	subs := []Status{NewHealthy("a", "")}
	got := Aggregate("dupguard", subs)
	require.Len(t, got.SubStatuses, 1)

	subs[0].Component = "changed"
	assert.Equal(t, "a", got.SubStatuses[0].Component)
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"unix path", "failed to open /var/lib/dupguard/claims.db", "failed to open [PATH]"},
		{"windows path", "cannot read C:\\dupguard\\claims.db", "cannot read [PATH]"},
		{"redis url", "dial redis://cache.internal:6379/0 failed", "dial [URL] failed"},
		{"nats url", "cannot connect to nats://localhost:4222", "cannot connect to [URL]"},
		{"postgres url", "open postgres://app:pw@db/dupguard: refused", "open [URL] refused"},
		{"ip address", "timeout connecting to 192.168.1.100", "timeout connecting to [IP]"},
		{"port", "failed to bind to :8080", "failed to bind to [PORT]"},
		{"credentials", "auth failed with password:hunter2", "auth failed with [REDACTED]"},
		{"plain", "bucket not found", "bucket not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeErrorMessage(tt.input))
		})
	}
}
