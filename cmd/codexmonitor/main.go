// codexmonitor supervises codex app-server processes for a set of
// workspaces and serves them to a UI over HTTP.
package main

import "os"

func main() {
	os.Exit(Execute())
}
