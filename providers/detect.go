package providers

import (
	"fmt"
	"strings"
)

// Name identifies a supported model provider.
type Name string

const (
	Anthropic Name = "anthropic"
	OpenAI    Name = "openai"
	Gemini    Name = "gemini"
)

// DetectionError is returned when no provider can be inferred from the
// configuration.
type DetectionError struct {
	Model string
}

func (e *DetectionError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("unable to detect provider for model %q; set the provider explicitly", e.Model)
	}
	return "unable to detect provider; set the provider explicitly"
}

var openAIModelPrefixes = []string{
	"gpt-", "o1-", "text-davinci", "text-curie", "text-babbage", "text-ada",
}

var geminiModelPrefixes = []string{"gemini-", "gemini_"}

// Detect infers the provider from configuration, in order: the explicit
// provider name, the model name, the API key shape, and finally any provider
// name appearing in the serialized config. Returns a DetectionError when
// nothing matches.
func Detect(provider, model, apiKey, serializedConfig string) (Name, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "anthropic", "claude":
		return Anthropic, nil
	case "openai", "gpt":
		return OpenAI, nil
	case "gemini", "google":
		return Gemini, nil
	}

	if name, ok := detectFromModel(model); ok {
		return name, nil
	}
	if name, ok := detectFromAPIKey(apiKey); ok {
		return name, nil
	}
	if name, ok := detectFromConfig(serializedConfig); ok {
		return name, nil
	}
	return "", &DetectionError{Model: model}
}

func detectFromModel(model string) (Name, bool) {
	m := strings.ToLower(strings.TrimSpace(model))
	if m == "" {
		return "", false
	}
	if strings.HasPrefix(m, "claude-") || strings.HasPrefix(m, "claude_") {
		return Anthropic, true
	}
	for _, prefix := range openAIModelPrefixes {
		if strings.HasPrefix(m, prefix) {
			return OpenAI, true
		}
	}
	for _, prefix := range geminiModelPrefixes {
		if strings.HasPrefix(m, prefix) {
			return Gemini, true
		}
	}
	if strings.Contains(m, "bison") || strings.Contains(m, "gecko") {
		return Gemini, true
	}
	return "", false
}

func detectFromAPIKey(apiKey string) (Name, bool) {
	key := strings.TrimSpace(apiKey)
	switch {
	case key == "":
		return "", false
	case strings.HasPrefix(key, "sk-ant-"):
		return Anthropic, true
	case strings.HasPrefix(key, "sk-") || strings.HasPrefix(key, "sk_"):
		return OpenAI, true
	case strings.HasPrefix(key, "AI"):
		return Gemini, true
	}
	return "", false
}

func detectFromConfig(serialized string) (Name, bool) {
	s := strings.ToLower(serialized)
	switch {
	case s == "":
		return "", false
	case strings.Contains(s, "anthropic") || strings.Contains(s, "claude"):
		return Anthropic, true
	case strings.Contains(s, "openai"):
		return OpenAI, true
	case strings.Contains(s, "gemini") || strings.Contains(s, "google"):
		return Gemini, true
	}
	return "", false
}
