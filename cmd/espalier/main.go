package main

import "github.com/jacentio/espalier/internal/cli"

func main() {
	cli.Execute()
}
