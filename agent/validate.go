package agent

import (
	"fmt"
	"strings"
)

// MaxQuestionLength caps user input, in characters.
const MaxQuestionLength = 100_000

// ValidationError indicates user input the client refuses to send.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// ValidateQuestion rejects empty, oversized, or null-byte-bearing input.
func ValidateQuestion(question string) error {
	if strings.TrimSpace(question) == "" {
		return &ValidationError{Reason: "question is empty"}
	}
	if length := len([]rune(question)); length > MaxQuestionLength {
		return &ValidationError{
			Reason: fmt.Sprintf("question is %d characters, limit is %d", length, MaxQuestionLength),
		}
	}
	if strings.ContainsRune(question, 0) {
		return &ValidationError{Reason: "question contains null bytes"}
	}
	return nil
}
