// scpctl is the operator CLI for the SCP transport library.
package main

import "github.com/project-rig/rig-scp/internal/cli"

func main() {
	cli.Execute()
}
