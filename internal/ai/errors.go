package ai

import "github.com/kiranshivaraju/errorwatch/internal/ai/llmhttp"

// Provider errors. Adapters return these wrapped; match with errors.Is.
var (
	ErrProviderUnavailable = llmhttp.ErrProviderUnavailable
	ErrInferenceTimeout    = llmhttp.ErrInferenceTimeout
	ErrInvalidResponse     = llmhttp.ErrInvalidResponse
	ErrQuotaExceeded       = llmhttp.ErrQuotaExceeded
)
