// Command browser-automation plans natural-language requests into
// browser actions and executes them over the DevTools protocol.
package main

import (
	"errors"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		rootCmd.PrintErrln("Error:", err)
		os.Exit(1)
	}
}

// exitError carries a specific process exit code without printing a
// second error message.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return "exit" }
