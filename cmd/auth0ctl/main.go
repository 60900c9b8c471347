// Command auth0ctl requests and verifies Auth0 access tokens and can serve
// token introspection over Connect.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/deepworx/go-auth0/pkg/shutdown"
)

func main() {
	root := newRootCmd()
	err := root.ExecuteContext(context.Background())

	// Flushes telemetry for one-shot commands; serve has already drained.
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if serr := shutdown.Shutdown(flushCtx); serr != nil {
		fmt.Fprintln(os.Stderr, "shutdown:", serr)
	}
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, newUI().fail("error:"), err)
		os.Exit(1)
	}
}
