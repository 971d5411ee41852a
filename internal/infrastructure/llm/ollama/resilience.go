package ollama

import "github.com/kirillkom/polis-rag/internal/infrastructure/resilience"

// HTTPStatusError is returned for non-2xx Ollama answers.
type HTTPStatusError = resilience.StatusError

func classifyOllamaError(err error) resilience.ErrorClassification {
	return resilience.ClassifyHTTPError(err)
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	return resilience.WrapTemporary(operation, err, classifyOllamaError)
}
