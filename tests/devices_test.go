package tests_test

import (
	"testing"

	"github.com/containerd/nerdctl/mod/tigron/expect"
	"github.com/containerd/nerdctl/mod/tigron/test"

	"github.com/mycophonic/hypha/tests/testutils"
)

// TestDevicesCommandRuns exercises the hyphaplay binary end to end the way
// the teacher's black-box tests drive saprobe: no audio file needed, since
// "devices" only enumerates output hardware (or reports none on a
// mixer-routed platform) and exits.
func TestDevicesCommandRuns(t *testing.T) {
	t.Parallel()

	testCase := testutils.Setup()
	testCase.Description = "devices command"
	testCase.Command = func(_ test.Data, helpers test.Helpers) test.TestableCommand {
		return helpers.Command("devices")
	}
	testCase.Expected = func(_ test.Data, _ test.Helpers) *test.Expected {
		return &test.Expected{ExitCode: expect.ExitCodeSuccess}
	}

	testCase.Run(t)
}
