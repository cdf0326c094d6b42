package ai

// CompleteOptions carries per-request settings for a completion call.
// Implementations read these after applying defaults.
type CompleteOptions struct {
	// Temperature controls sampling randomness. Synthesis callers use low
	// values for deterministic, grounded output.
	Temperature float64

	// MaxTokens caps the length of the generated completion.
	// Zero means the model default.
	MaxTokens int

	// JSONMode requests a structured JSON response from the model when the
	// backing API supports it.
	JSONMode bool
}

// CompleteOption is a functional option for a single completion request.
type CompleteOption func(*CompleteOptions)

// WithTemperature sets the sampling temperature for the request.
func WithTemperature(temperature float64) CompleteOption {
	return func(o *CompleteOptions) {
		o.Temperature = temperature
	}
}

// WithMaxTokens caps the completion length for the request.
func WithMaxTokens(maxTokens int) CompleteOption {
	return func(o *CompleteOptions) {
		o.MaxTokens = maxTokens
	}
}

// WithJSONMode requests a JSON-formatted response for the request.
func WithJSONMode() CompleteOption {
	return func(o *CompleteOptions) {
		o.JSONMode = true
	}
}

// ApplyCompleteOptions returns the default options with the given options applied.
func ApplyCompleteOptions(opts ...CompleteOption) CompleteOptions {
	options := CompleteOptions{
		Temperature: 0.1,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
