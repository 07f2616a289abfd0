package transform

import "errors"

// Sentinel errors returned by transformers and clients. Callers match with
// errors.Is; the wrapped message carries the detail.
var (
	// ErrNoUsablePayload means the reply contained no fenced code block.
	ErrNoUsablePayload = errors.New("no usable payload in transformation reply")

	// ErrAuth means the provider rejected the credentials (401/403).
	ErrAuth = errors.New("provider rejected credentials")

	// ErrMissingAPIKey means no credential was configured for the provider.
	ErrMissingAPIKey = errors.New("API key not configured")

	// ErrEmptyCompletion means the provider answered without any text.
	ErrEmptyCompletion = errors.New("no completion returned")
)
