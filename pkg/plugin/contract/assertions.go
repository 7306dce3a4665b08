// Package contract provides contract test assertions for Lokus extension plugins.
package contract

import (
	"fmt"

	domainPlugin "github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
)

// Result captures the outcome of a single contract assertion.
type Result struct {
	Name    string
	Passed  bool
	Message string
}

// AssertActivateEmpty verifies that Activate accepts an empty configuration.
func AssertActivateEmpty(ext domainPlugin.Extension) Result {
	if err := ext.Activate(map[string]string{}); err != nil {
		return Result{Name: "ActivateEmpty", Passed: false, Message: fmt.Sprintf("Activate failed: %v", err)}
	}
	return Result{Name: "ActivateEmpty", Passed: true, Message: "Activate succeeded"}
}

// AssertActivateTwice verifies that a repeated Activate, as done by every
// hot reload, does not fail.
func AssertActivateTwice(ext domainPlugin.Extension) Result {
	if err := ext.Activate(map[string]string{"reload": "true"}); err != nil {
		return Result{Name: "ActivateTwice", Passed: false, Message: fmt.Sprintf("second Activate failed: %v", err)}
	}
	return Result{Name: "ActivateTwice", Passed: true, Message: "repeated Activate succeeded"}
}

// AssertDescribe verifies that Describe returns a named descriptor.
func AssertDescribe(ext domainPlugin.Extension) Result {
	d, err := ext.Describe()
	if err != nil {
		return Result{Name: "Describe", Passed: false, Message: fmt.Sprintf("Describe failed: %v", err)}
	}
	if d == nil || d.Name == "" {
		return Result{Name: "Describe", Passed: false, Message: "Describe returned no name"}
	}
	if d.Version == "" {
		// soft check, version is informational
		return Result{Name: "Describe", Passed: true, Message: fmt.Sprintf("%s has no version (acceptable)", d.Name)}
	}
	return Result{Name: "Describe", Passed: true, Message: fmt.Sprintf("%s %s", d.Name, d.Version)}
}

// AssertDeactivate verifies that Deactivate succeeds after activation.
func AssertDeactivate(ext domainPlugin.Extension) Result {
	if err := ext.Deactivate(); err != nil {
		return Result{Name: "Deactivate", Passed: false, Message: fmt.Sprintf("Deactivate failed: %v", err)}
	}
	return Result{Name: "Deactivate", Passed: true, Message: "Deactivate succeeded"}
}
