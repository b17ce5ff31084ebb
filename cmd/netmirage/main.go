// Command netmirage plans and, on Linux, applies emulated network topologies
// described by a GraphML file.
package main

import "github.com/walexzzy/netmirage/internal/cli"

func main() {
	cli.Execute()
}
