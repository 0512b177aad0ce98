package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/c360/dupguard/errors"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, 2*time.Second, p.TTL)
	assert.Empty(t, p.KeyExpression)
	assert.True(t, p.IncludeOperationPath)
	assert.False(t, p.ReleaseOnCompletion)
	assert.Equal(t, "duplicate submission, please retry later", p.RejectionMessage)
	assert.NoError(t, p.Validate())
	assert.Equal(t, int64(2), p.TTLSeconds())
}

func TestPolicy_Builders(t *testing.T) {
	base := DefaultPolicy()
	p := base.WithTTL(200 * time.Second).WithKeyExpression("#foo").WithReleaseOnCompletion(true)

	assert.Equal(t, 200*time.Second, p.TTL)
	assert.Equal(t, "#foo", p.KeyExpression)
	assert.True(t, p.ReleaseOnCompletion)

	// base is a value and stays untouched
	assert.Equal(t, DefaultTTL, base.TTL)
	assert.Empty(t, base.KeyExpression)
	assert.False(t, base.ReleaseOnCompletion)
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{"default", DefaultPolicy(), false},
		{"one second", DefaultPolicy().WithTTL(time.Second), false},
		{"zero ttl", DefaultPolicy().WithTTL(0), true},
		{"negative ttl", DefaultPolicy().WithTTL(-time.Second), true},
		{"sub-second ttl", DefaultPolicy().WithTTL(500 * time.Millisecond), true},
		{"fractional ttl", DefaultPolicy().WithTTL(1500 * time.Millisecond), true},
		{"field path", DefaultPolicy().WithKeyExpression("#foobar.bar"), false},
		{"concatenation", DefaultPolicy().WithKeyExpression("#foo + '-' + #bar"), false},
		{"bad expression", DefaultPolicy().WithKeyExpression("#"), true},
		{"unterminated string", DefaultPolicy().WithKeyExpression("#foo + 'x"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPolicy_RejectionMessageFallback(t *testing.T) {
	p := DefaultPolicy()
	p.RejectionMessage = ""
	assert.Equal(t, DefaultRejectionMessage, p.rejectionMessage())

	p.RejectionMessage = "slow down"
	assert.Equal(t, "slow down", p.rejectionMessage())
}
