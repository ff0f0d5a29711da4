package types

import (
	"fmt"
	"strings"
)

// TaskType is the workload the built artifact will serve on the device.
// It is fixed at request time and never inferred from the model file.
type TaskType string

const (
	TaskLLM    TaskType = "llm"
	TaskVoice  TaskType = "voice"
	TaskVision TaskType = "vision"
)

// ParseTaskType normalizes a user-supplied task identifier.
func ParseTaskType(s string) (TaskType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "llm", "text", "chat":
		return TaskLLM, nil
	case "voice", "speech", "asr", "tts":
		return TaskVoice, nil
	case "vision", "image", "detect":
		return TaskVision, nil
	default:
		return "", fmt.Errorf("unknown task type: %q (want llm|voice|vision)", s)
	}
}
