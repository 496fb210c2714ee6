// Command pductl is the operator CLI for the pduendpoint core: validating
// container manifests offline, running a node's endpoints, and inspecting
// their live status from the terminal.
package main

import "github.com/strand-protocol/strand/pduendpoint/cmd/pductl/cmd"

func main() {
	cmd.Execute()
}
