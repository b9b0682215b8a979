// Package llm provides the text-generation collaborator for the Gadfly
// persona engine.
//
// The engine never interprets generated text beyond line shaping; this layer's
// sole responsibility is turning (system profile, prompt) into raw text. All
// failure modes are reported as errors so the caller can abandon the affected
// flush — the persona falling silent is the designed failure behaviour.
package llm

import (
	"context"
	"errors"
)

// ErrRateLimit is returned when the upstream API reports a rate-limiting
// condition (HTTP 429 Too Many Requests).  Callers treat it like any other
// generation failure: the flush is abandoned without retry.
var ErrRateLimit = errors.New("llm: upstream rate limit exceeded")

// ErrEmptyCompletion is returned when the API answers successfully but the
// completion contains no usable text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// Provider generates persona text from a system profile and a prompt.
//
// Implementations must be safe for concurrent use from multiple goroutines
// and must honour ctx cancellation/deadline: the engine imposes a per-flush
// timeout and treats expiry as "no reply produced".
type Provider interface {
	// Generate sends the prompt under the given system profile and returns
	// the raw completion text.
	Generate(ctx context.Context, systemProfile, prompt string) (string, error)
}
