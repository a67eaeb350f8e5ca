// Package inference abstracts text-generation providers behind a single
// completion call.
package inference

import "context"

// Client is an opaque text-completion capability: prompt in, text out.
//
// Implementations wrap a provider SDK (Anthropic, OpenAI, Gemini) and
// classify failures for the retry policy:
//   - network errors, timeouts and rate limits are transient
//   - content-safety rejections are permanent for that prompt
//
// Fallback text on an unusable completion is the calling step's concern,
// not the client's.
type Client interface {
	// Complete generates text for the prompt. The returned string may be
	// empty when the provider produced no usable content without erroring;
	// callers decide whether that warrants fallback text.
	Complete(ctx context.Context, prompt string) (string, error)
}

// SafetyError reports a provider rejecting a prompt or completion on
// content-safety grounds. Safety rejections are permanent for the prompt:
// retrying the identical input cannot succeed.
type SafetyError struct {
	Provider string
	Reason   string
}

func (e *SafetyError) Error() string {
	return e.Provider + " safety rejection: " + e.Reason
}
