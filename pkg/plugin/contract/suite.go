package contract

import (
	"context"
	"fmt"

	domainPlugin "github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
	infraPlugin "github.com/lokus-ai/lokus-plugins/pkg/plugin"
)

// ContractSuite runs all contract assertions against a plugin binary.
type ContractSuite struct {
	launch infraPlugin.Launcher
}

// NewContractSuite creates a new contract suite. A nil launcher starts
// binaries with go-plugin.
func NewContractSuite(launch infraPlugin.Launcher) *ContractSuite {
	if launch == nil {
		launch = infraPlugin.LaunchRPC
	}
	return &ContractSuite{launch: launch}
}

// SuiteResult aggregates results from running the full contract suite.
type SuiteResult struct {
	Results []Result
	Passed  int
	Failed  int
}

// OK reports whether every assertion passed.
func (r *SuiteResult) OK() bool {
	return r.Failed == 0
}

// RunWithExtension runs the contract suite against an already-started extension.
func (s *ContractSuite) RunWithExtension(ext domainPlugin.Extension) *SuiteResult {
	assertions := []func(domainPlugin.Extension) Result{
		AssertActivateEmpty,
		AssertDescribe,
		AssertActivateTwice,
		AssertDeactivate,
	}

	sr := &SuiteResult{}
	for _, assert := range assertions {
		result := assert(ext)
		sr.Results = append(sr.Results, result)
		if result.Passed {
			sr.Passed++
		} else {
			sr.Failed++
		}
	}
	return sr
}

// RunBinary starts a plugin binary and runs the full contract suite.
func (s *ContractSuite) RunBinary(ctx context.Context, path string) (*SuiteResult, error) {
	proc, err := s.launch(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load plugin: %w", err)
	}
	defer proc.Kill()

	return s.RunWithExtension(proc.Extension()), nil
}
