package main

import "github.com/rbxsync/rbxsync/cli"

func main() {
	cli.Execute()
}
