package guard

import "strings"

// KeySeparator joins the segments of a storage key.
const KeySeparator = ":"

// BuildKey composes "[namespace:][operationPath:]fingerprint". Empty segments
// are skipped and a trailing separator is trimmed.
func BuildKey(namespace, operationPath, fingerprint string) string {
	var b strings.Builder
	b.Grow(len(namespace) + len(operationPath) + len(fingerprint) + 2)

	if namespace != "" {
		b.WriteString(namespace)
		b.WriteString(KeySeparator)
	}
	if operationPath != "" {
		b.WriteString(operationPath)
		b.WriteString(KeySeparator)
	}
	b.WriteString(fingerprint)

	return strings.TrimSuffix(b.String(), KeySeparator)
}
