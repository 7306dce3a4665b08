// Package sdk provides a typed Go client for the lokus-plugins MCP server.
//
// The client wraps mcp-go/client.CallTool with one method per MCP tool and
// retries transport failures via fortify.
//
// Usage:
//
//	transport, _ := client.NewStdioTransport("lokus-plugins", "mcp")
//	c := sdk.NewClient(transport)
//	defer c.Close()
//
//	_, _ = c.Initialize(ctx)
//	results, _ := c.Reload(ctx, "word-count")
//	fmt.Println(results[0].Outcome)
package sdk
