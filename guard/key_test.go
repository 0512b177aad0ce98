package guard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildKey(t *testing.T) {
	tests := []struct {
		name        string
		namespace   string
		path        string
		fingerprint string
		want        string
	}{
		{"all segments", "no-duplicate", "/test", "0badc0de", "no-duplicate:/test:0badc0de"},
		{"no namespace", "", "/test", "0badc0de", "/test:0badc0de"},
		{"no path", "no-duplicate", "", "0badc0de", "no-duplicate:0badc0de"},
		{"fingerprint only", "", "", "0badc0de", "0badc0de"},
		{"trailing separator trimmed", "no-duplicate", "", "", "no-duplicate"},
		{"empty", "", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildKey(tt.namespace, tt.path, tt.fingerprint))
		})
	}
}

func TestOperationPathContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, OperationPathFromContext(ctx))

	ctx = WithOperationPath(ctx, "/test/spel")
	assert.Equal(t, "/test/spel", OperationPathFromContext(ctx))
}
