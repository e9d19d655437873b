package main

import "github.com/gitter-badger/deployer-1/cmd/deployer-server/cmd"

func main() {
	cmd.Execute()
}
