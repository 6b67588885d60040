// Command verifyctl is the operator CLI for verifysvcd: it exercises the
// four session RPCs directly, drives synthetic load, and can watch a
// session's state live in a small terminal UI.
package main

import (
	"fmt"
	"os"

	"github.com/haloverify/verifysvc/internal/tools/common"
)

func main() {
	_ = common.LoadEnvFile(".env")

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
