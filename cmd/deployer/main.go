package main

import "github.com/gitter-badger/deployer-1/cmd/deployer/cmd"

func main() {
	cmd.Execute()
}
