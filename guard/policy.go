package guard

import (
	"fmt"
	"time"

	"github.com/c360/dupguard/errors"
	"github.com/c360/dupguard/pkg/keyexpr"
)

const (
	// DefaultTTL is how long a claim is held when a policy does not say otherwise.
	DefaultTTL = 2 * time.Second

	// DefaultRejectionMessage is returned to callers of a rejected duplicate.
	DefaultRejectionMessage = "duplicate submission, please retry later"
)

// Policy configures how one operation is guarded. Policies are values and are
// meant to be fixed when the operation is wired.
type Policy struct {
	// TTL is how long a claim is held before the store expires it. Whole seconds, at least 1s.
	TTL time.Duration `json:"ttl" yaml:"ttl"`

	// KeyExpression selects the arguments that identify a call, e.g. "#foobar.bar".
	// Empty means all arguments are used.
	KeyExpression string `json:"key_expression" yaml:"key_expression"`

	// IncludeOperationPath adds the routing path of the call to the key.
	IncludeOperationPath bool `json:"include_operation_path" yaml:"include_operation_path"`

	// ReleaseOnCompletion deletes the claim as soon as the operation returns,
	// whether it succeeded or not.
	ReleaseOnCompletion bool `json:"release_on_completion" yaml:"release_on_completion"`

	// RejectionMessage is the text of the DuplicateError for this operation.
	RejectionMessage string `json:"rejection_message" yaml:"rejection_message"`
}

// DefaultPolicy returns the policy used for operations without explicit settings.
func DefaultPolicy() Policy {
	return Policy{
		TTL:                  DefaultTTL,
		IncludeOperationPath: true,
		RejectionMessage:     DefaultRejectionMessage,
	}
}

// WithTTL returns a copy of p with the given TTL.
func (p Policy) WithTTL(ttl time.Duration) Policy {
	p.TTL = ttl
	return p
}

// WithKeyExpression returns a copy of p keyed by expr.
func (p Policy) WithKeyExpression(expr string) Policy {
	p.KeyExpression = expr
	return p
}

// WithReleaseOnCompletion returns a copy of p with early release switched on or off.
func (p Policy) WithReleaseOnCompletion(release bool) Policy {
	p.ReleaseOnCompletion = release
	return p
}

// Validate checks that the policy can be expressed against the store and that
// its key expression compiles. Policies are static, so call it once when an
// operation is wired rather than per call.
func (p Policy) Validate() error {
	if err := p.validateTTL(); err != nil {
		return err
	}
	if p.KeyExpression != "" {
		if _, err := keyexpr.Compile(p.KeyExpression); err != nil {
			return errors.WrapInvalid(err, "Policy", "Validate", "compile key expression")
		}
	}
	return nil
}

func (p Policy) validateTTL() error {
	if p.TTL < time.Second {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Policy", "Validate",
			fmt.Sprintf("ttl must be at least 1s, got %v", p.TTL))
	}
	if p.TTL%time.Second != 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Policy", "Validate",
			fmt.Sprintf("ttl must be whole seconds, got %v", p.TTL))
	}
	return nil
}

// TTLSeconds returns the TTL in whole seconds.
func (p Policy) TTLSeconds() int64 {
	return int64(p.TTL / time.Second)
}

func (p Policy) rejectionMessage() string {
	if p.RejectionMessage == "" {
		return DefaultRejectionMessage
	}
	return p.RejectionMessage
}
