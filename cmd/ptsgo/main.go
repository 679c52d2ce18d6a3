// Command ptsgo drives the flow-sensitive points-to analysis over a loaded
// Go program: load packages, solve, then answer alias/points-to queries or
// write debug dot dumps. Per the library's split between the analysis core
// and its external collaborators, this command does no analysis of its own
// — it only adapts flags into internal/pipeline.Config and calls the
// library (the same division rtcheck's main.go keeps from the pointer
// analysis it drives).
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
