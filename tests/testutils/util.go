// Package testutils wires the agar/tigron black-box test harness to the
// hyphaplay binary, the way the teacher's tests/testutils wires it to
// saprobe.
package testutils

import (
	"github.com/containerd/nerdctl/mod/tigron/test"

	"github.com/mycophonic/agar/pkg/agar"
)

// Setup creates a test case configured to run the hyphaplay binary.
func Setup() *test.Case {
	return agar.Setup("hyphaplay")
}
