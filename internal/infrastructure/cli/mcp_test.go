package cli

import (
	"errors"
	"testing"
)

func TestMCPCmd_UnsupportedTransport(t *testing.T) {
	_, flags := testWorkspace(t)
	args := append([]string{"mcp", "--transport", "smoke"}, flags...)

	_, err := runCLI(t, args...)
	var cliErr *CLIError
	if !errors.As(err, &cliErr) || cliErr.Hint == "" {
		t.Errorf("expected a CLIError with a hint, got %v", err)
	}
}

func TestMCPCmd_Skipped(t *testing.T) {
	t.Setenv("LOKUS_SKIP_MCP_START", "true")
	_, flags := testWorkspace(t)
	args := append([]string{"mcp", "--transport", "stdio"}, flags...)

	if _, err := runCLI(t, args...); err != nil {
		t.Errorf("skipped mcp start should succeed, got %v", err)
	}
}
