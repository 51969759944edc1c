package config

// Secret is a credential loaded from config. It redacts itself when
// printed, formatted, or serialized; only [Secret.Value] returns the raw
// string.
type Secret string

const secretRedacted = "[REDACTED]"

// String returns the redacted placeholder.
func (s Secret) String() string { return secretRedacted }

// GoString returns the redacted placeholder for %#v.
func (s Secret) GoString() string { return secretRedacted }

// Value returns the raw secret. Call it only where the credential is used.
func (s Secret) Value() string { return string(s) }

// IsSet reports whether a value was configured.
func (s Secret) IsSet() bool { return s != "" }

// MarshalText implements [encoding.TextMarshaler] so JSON and YAML output
// carry the placeholder instead of the value.
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }
