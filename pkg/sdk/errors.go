package sdk

import (
	"errors"
	"fmt"
)

// ErrNoContent means a tool answered without any content item.
var ErrNoContent = errors.New("lokus-plugins: tool result has no content")

// ToolError carries the message of a tool call that the server rejected,
// such as an unknown plugin or a missing argument.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("lokus-plugins: %s failed", e.Tool)
	}
	return fmt.Sprintf("lokus-plugins: %s: %s", e.Tool, e.Message)
}
