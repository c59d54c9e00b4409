// Command guidance runs the guidance control plane CLI: compile rules
// documents, retrieve policy text for a task, evaluate gate checks, inspect
// the ledger, and run optimizer cycles.
package main

import "github.com/guidanceplane/guidance/cmd/guidance/cmd"

func main() {
	cmd.Execute()
}
