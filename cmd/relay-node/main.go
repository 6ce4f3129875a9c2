package main

import "github.com/Archie3d/lora-relay-node/cmd/relay-node/cmd"

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cmd.Execute(version)
}
