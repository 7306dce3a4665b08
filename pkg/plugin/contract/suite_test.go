package contract

import (
	"context"
	"errors"
	"testing"

	domainPlugin "github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
	infraPlugin "github.com/lokus-ai/lokus-plugins/pkg/plugin"
)

type goodExtension struct{}

func (g *goodExtension) Activate(map[string]string) error { return nil }
func (g *goodExtension) Deactivate() error                { return nil }
func (g *goodExtension) Describe() (*domainPlugin.Descriptor, error) {
	return &domainPlugin.Descriptor{Name: "good", Version: "1.0.0"}, nil
}

type badExtension struct{}

func (badExtension) Activate(map[string]string) error { return errors.New("activate fail") }
func (badExtension) Deactivate() error                { return errors.New("deactivate fail") }
func (badExtension) Describe() (*domainPlugin.Descriptor, error) {
	return nil, errors.New("describe fail")
}

type fakeProcess struct {
	ext    domainPlugin.Extension
	killed bool
}

func (p *fakeProcess) Extension() domainPlugin.Extension { return p.ext }
func (p *fakeProcess) Kill()                             { p.killed = true }

func TestRunWithExtension_AllPass(t *testing.T) {
	sr := NewContractSuite(nil).RunWithExtension(&goodExtension{})
	if !sr.OK() || sr.Passed != 4 {
		t.Errorf("expected 4 passing assertions, got %+v", sr)
	}
}

func TestRunWithExtension_Failures(t *testing.T) {
	sr := NewContractSuite(nil).RunWithExtension(badExtension{})
	if sr.OK() {
		t.Fatal("expected failures")
	}
	if sr.Failed != 4 {
		t.Errorf("expected 4 failures, got %d", sr.Failed)
	}
	for _, r := range sr.Results {
		if r.Message == "" {
			t.Errorf("%s: failure should carry a message", r.Name)
		}
	}
}

func TestAssertDescribe_NoVersion(t *testing.T) {
	r := AssertDescribe(describeOnly{&domainPlugin.Descriptor{Name: "x"}})
	if !r.Passed {
		t.Errorf("missing version is a soft check, got %+v", r)
	}

	r = AssertDescribe(describeOnly{&domainPlugin.Descriptor{}})
	if r.Passed {
		t.Error("a nameless descriptor must fail")
	}
}

type describeOnly struct{ d *domainPlugin.Descriptor }

func (describeOnly) Activate(map[string]string) error              { return nil }
func (describeOnly) Deactivate() error                             { return nil }
func (d describeOnly) Describe() (*domainPlugin.Descriptor, error) { return d.d, nil }

func TestRunBinary(t *testing.T) {
	proc := &fakeProcess{ext: &goodExtension{}}
	var launched string
	suite := NewContractSuite(func(_ context.Context, path string) (infraPlugin.Process, error) {
		launched = path
		return proc, nil
	})

	sr, err := suite.RunBinary(context.Background(), "/plugins/good/dist/plugin")
	if err != nil {
		t.Fatal(err)
	}
	if !sr.OK() {
		t.Errorf("expected pass, got %+v", sr)
	}
	if launched != "/plugins/good/dist/plugin" {
		t.Errorf("unexpected path %q", launched)
	}
	if !proc.killed {
		t.Error("process must be killed after the suite")
	}
}

func TestRunBinary_LaunchError(t *testing.T) {
	suite := NewContractSuite(func(context.Context, string) (infraPlugin.Process, error) {
		return nil, errors.New("handshake failed")
	})
	if _, err := suite.RunBinary(context.Background(), "/x"); err == nil {
		t.Error("expected launch error")
	}
}
