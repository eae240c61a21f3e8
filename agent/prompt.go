package agent

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/vianexus/agent-sdk-go/slogger"
)

// DefaultSystemPrompt is used when neither the configuration nor the
// software statement supplies one.
const DefaultSystemPrompt = "You are a skilled Financial Analyst. You will use the tools provided to you to answer the question. You will only use the tools provided to you and not any other tools that are not provided to you. Use the `search` tool to find the appropriate dataset for the question. Use the `fetch` tool to fetch the data from the dataset."

// maxPromptLength caps a prompt extracted from the software statement.
const maxPromptLength = 10_000

// promptClaimKeys are checked in order against the software statement
// payload, including one level under a "claims" object.
var promptClaimKeys = []string{"system_prompt", "systemPrompt"}

// ResolveSystemPrompt picks the system prompt by priority: the explicit
// configuration value, then a prompt embedded in the software statement JWT,
// then the default. JWT problems are warned about and fall through, never
// fail.
func ResolveSystemPrompt(explicit, softwareStatement string, logger slogger.Logger) string {
	if logger == nil {
		logger = slogger.DefaultLogger
	}
	if explicit != "" {
		return explicit
	}
	if softwareStatement != "" {
		if prompt, ok := promptFromSoftwareStatement(softwareStatement, logger); ok {
			return prompt
		}
	}
	return DefaultSystemPrompt
}

// promptFromSoftwareStatement extracts a system prompt from the software
// statement's payload. The statement is issued by the server and verified
// there; the client only reads claims, so the signature is not checked here.
func promptFromSoftwareStatement(statement string, logger slogger.Logger) (string, bool) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(statement, claims); err != nil {
		logger.Warn("ignoring malformed software statement", "error", err)
		return "", false
	}
	if prompt, ok := promptFromClaims(claims, logger); ok {
		return prompt, true
	}
	if nested, ok := claims["claims"].(map[string]any); ok {
		return promptFromClaims(nested, logger)
	}
	return "", false
}

func promptFromClaims(claims map[string]any, logger slogger.Logger) (string, bool) {
	for _, key := range promptClaimKeys {
		value, present := claims[key]
		if !present {
			continue
		}
		prompt, ok := value.(string)
		if !ok {
			logger.Warn("ignoring non-string system prompt in software statement", "key", key)
			continue
		}
		if prompt == "" {
			continue
		}
		if len(prompt) > maxPromptLength {
			prompt = prompt[:maxPromptLength]
		}
		return prompt, true
	}
	return "", false
}
