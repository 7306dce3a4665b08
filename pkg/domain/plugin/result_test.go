package plugin_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
)

func TestReloadError(t *testing.T) {
	cause := errors.New("boom")
	err := &plugin.ReloadError{Plugin: "foo", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("ReloadError should unwrap to its cause")
	}
	if !strings.Contains(err.Error(), `"foo"`) {
		t.Errorf("error should name the plugin, got %q", err.Error())
	}
}

func TestReloadResult(t *testing.T) {
	ok := plugin.ReloadResult{Plugin: "foo", Outcome: plugin.OutcomeReloaded}
	if !ok.OK() || ok.Message() != "" {
		t.Errorf("unexpected success result: %+v", ok)
	}

	failed := plugin.ReloadResult{
		Plugin:  "bar",
		Outcome: plugin.OutcomeFailed,
		Err:     &plugin.ReloadError{Plugin: "bar", Cause: errors.New("exit status 1")},
	}
	if failed.OK() {
		t.Error("failed result must not be OK")
	}
	if !strings.Contains(failed.Message(), "exit status 1") {
		t.Errorf("unexpected message %q", failed.Message())
	}

	skipped := plugin.ReloadResult{
		Plugin:  "baz",
		Outcome: plugin.OutcomeSkipped,
		Err:     &plugin.ReloadError{Plugin: "baz", Cause: plugin.ErrReloadInFlight},
	}
	if !errors.Is(skipped.Err, plugin.ErrReloadInFlight) {
		t.Error("skipped result should carry ErrReloadInFlight")
	}
}
