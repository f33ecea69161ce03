// arcbox is the CLI for managing named ZIP containers of logical files.
//
// Commands:
//
//	arcbox new NAME          Create (or reset) a container and register it
//	arcbox load NAME         Register an existing container
//	arcbox ls                List registered containers
//	arcbox members NAME      List the entries of a container
//	arcbox write NAME MEMBER Write a member from text or stdin
//	arcbox append NAME MEMBER
//	arcbox cat NAME MEMBER   Print a member
//	arcbox watch NAME        Pack staged files as they change
//	arcbox log NAME          Show the container event log
//	arcbox gc                Remove stale temp files and old events
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
