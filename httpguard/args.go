package httpguard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/c360/dupguard/errors"
)

// MaxBodyBytes bounds how much of a request body JSONBody reads.
const MaxBodyBytes = 1 << 20

// ArgsFunc extracts the arguments of a guarded call from a request.
type ArgsFunc func(r *http.Request) ([]any, error)

// NoArgs is the ArgsFunc of operations without parameters.
func NoArgs(*http.Request) ([]any, error) {
	return nil, nil
}

// QueryArgs returns the named query parameters in order. A missing
// parameter is passed as nil.
func QueryArgs(names ...string) ArgsFunc {
	return func(r *http.Request) ([]any, error) {
		query := r.URL.Query()
		args := make([]any, len(names))
		for i, name := range names {
			if query.Has(name) {
				args[i] = query.Get(name)
			}
		}
		return args, nil
	}
}

// JSONBody decodes the request body into a T and passes it as the only
// argument. The body is restored so the handler can read it again.
func JSONBody[T any]() ArgsFunc {
	return func(r *http.Request) ([]any, error) {
		if r.Body == nil {
			return nil, errors.WrapInvalid(errors.ErrInvalidData, "httpguard", "JSONBody", "read body")
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
		_ = r.Body.Close()
		if err != nil {
			return nil, errors.WrapInvalid(err, "httpguard", "JSONBody", "read body")
		}
		if len(body) > MaxBodyBytes {
			return nil, errors.WrapInvalid(errors.ErrInvalidData, "httpguard", "JSONBody",
				fmt.Sprintf("body exceeds %d bytes", MaxBodyBytes))
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		var v T
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, errors.WrapInvalid(errors.ErrParsingFailed, "httpguard", "JSONBody", err.Error())
		}
		return []any{v}, nil
	}
}
