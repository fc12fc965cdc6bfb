package main

import "github.com/jmcleod/ironwallet/cmd/ironwallet/cmd"

func main() {
	cmd.Execute()
}
