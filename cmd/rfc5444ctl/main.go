// rfc5444ctl is the CLI client for rfc5444d, talking to its admin HTTP
// surface to inspect protocols/targets and force aggregation flushes.
package main

import "github.com/oonf-project/rfc5444d/cmd/rfc5444ctl/commands"

func main() {
	commands.Execute()
}
