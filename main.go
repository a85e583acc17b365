package main

import "github.com/gip/gip/cmd"

func main() {
	cmd.Run()
}
