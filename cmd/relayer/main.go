package main

import (
	"github.com/bitgreen/bridge-relayers/cmd"
)

func main() {
	cmd.Main()
}
