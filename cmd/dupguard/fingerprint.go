package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/c360/dupguard/guard"
	"github.com/c360/dupguard/paramnames"
	"github.com/c360/dupguard/store/memstore"
)

type fingerprintOptions struct {
	Signature  string
	Path       string
	NoPath     bool
	Expression string
	Names      []string
	Namespace  string
	JSONArgs   bool
	Output     string
}

// fingerprintResult is what the fingerprint command reports.
type fingerprintResult struct {
	Signature   string   `json:"signature"`
	Fingerprint string   `json:"fingerprint"`
	Key         string   `json:"key"`
	Degraded    []string `json:"degraded,omitempty"`
}

// NewFingerprintCommand computes the claim key of an invocation offline.
func NewFingerprintCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &fingerprintOptions{}

	cmd := &cobra.Command{
		Use:   "fingerprint [flags] [ARG...]",
		Short: "Print the fingerprint and claim key of an invocation",
		Long: `Compute the fingerprint and claim key a guarded call would use, without
contacting a store. Useful to find out why two calls collide or do not.

Arguments are strings unless --json is set, in which case each ARG is decoded
as a JSON value.`,
		Example: `  dupguard fingerprint --signature "FoobarController.Get(foo, bar string)" --path /test foo bar
  dupguard fingerprint --signature "FoobarController.PostSpel(foobar Foobar)" \
      --names foobar --expr "#foobar.bar" --json '{"foo":"foo","bar":"bar"}'`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("namespace") {
				cfg, err := loadConfig(rootOpts)
				if err != nil {
					return err
				}
				opts.Namespace = cfg.Namespace
			}
			result, err := computeFingerprint(opts, args)
			if err != nil {
				return err
			}
			return writeFingerprint(cmd.OutOrStdout(), opts.Output, result)
		},
	}

	cmd.Flags().StringVar(&opts.Signature, "signature", "", "operation signature (required)")
	cmd.Flags().StringVar(&opts.Path, "path", "", "operation routing path, e.g. /test")
	cmd.Flags().BoolVar(&opts.NoPath, "no-path", false, "leave the routing path out of the key")
	cmd.Flags().StringVar(&opts.Expression, "expr", "", "key expression, e.g. '#foobar.bar'")
	cmd.Flags().StringSliceVar(&opts.Names, "names", nil, "argument names in call order (for --expr)")
	cmd.Flags().StringVar(&opts.Namespace, "namespace", "", "key namespace (default from config)")
	cmd.Flags().BoolVar(&opts.JSONArgs, "json", false, "decode each ARG as JSON")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "output format (text|json)")
	_ = cmd.MarkFlagRequired("signature")

	return cmd
}

func computeFingerprint(opts *fingerprintOptions, rawArgs []string) (*fingerprintResult, error) {
	if opts.Output != "text" && opts.Output != "json" {
		return nil, fmt.Errorf("invalid output %q: must be text or json", opts.Output)
	}

	args, err := parseArgs(rawArgs, opts.JSONArgs)
	if err != nil {
		return nil, err
	}

	decls := paramnames.NewDeclarations()
	if len(opts.Names) > 0 {
		if err := decls.Declare(opts.Signature, opts.Names...); err != nil {
			return nil, err
		}
	}
	names := staticNames{decls: decls}

	result := &fingerprintResult{Signature: opts.Signature}
	fp := guard.NewFingerprinter(names, guard.WithDegradedHook(func(reason guard.DegradedReason) {
		result.Degraded = append(result.Degraded, string(reason))
	}))

	policy := guard.DefaultPolicy().WithKeyExpression(opts.Expression)
	policy.IncludeOperationPath = !opts.NoPath

	inv := guard.Invocation{Signature: opts.Signature, Path: opts.Path, Args: args}
	result.Fingerprint = fp.Fingerprint(inv, policy.KeyExpression)

	// The key is computed by a coordinator so it matches a running server.
	store := memstore.New(memstore.WithCleanupInterval(0))
	defer func() { _ = store.Close() }()
	coordinator, err := guard.NewCoordinator(store,
		guard.WithNamespace(opts.Namespace), guard.WithNameResolver(names))
	if err != nil {
		return nil, err
	}
	result.Key = coordinator.Key(inv, policy)
	return result, nil
}

// staticNames answers name lookups straight from declarations.
type staticNames struct {
	decls *paramnames.Declarations
}

func (s staticNames) NamesFor(signature string) []string {
	names, err := s.decls.ParamNames(signature)
	if err != nil {
		return nil
	}
	return names
}

func parseArgs(raw []string, asJSON bool) ([]any, error) {
	args := make([]any, len(raw))
	for i, s := range raw {
		if !asJSON {
			args[i] = s
			continue
		}
		dec := json.NewDecoder(bytes.NewReader([]byte(s)))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("argument %d is not valid JSON: %w", i+1, err)
		}
		args[i] = v
	}
	return args, nil
}

func writeFingerprint(w io.Writer, format string, result *fingerprintResult) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if _, err := fmt.Fprintf(w, "fingerprint: %s\nkey:         %s\n", result.Fingerprint, result.Key); err != nil {
		return err
	}
	for _, reason := range result.Degraded {
		if _, err := fmt.Fprintf(w, "degraded:    %s\n", reason); err != nil {
			return err
		}
	}
	return nil
}
