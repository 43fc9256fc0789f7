// Command toolsentry is the policy gateway's CLI entrypoint.
package main

import "github.com/toolsentry/toolsentry/cmd/toolsentry/cmd"

func main() {
	cmd.Execute()
}
