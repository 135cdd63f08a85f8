package main

import (
	"github.com/sw33tLie/shopsight/cmd"
)

func main() {
	cmd.Execute()
}
