package main

import "github.com/OpenTraceLab/xvcplay/cmd/xvcplay/cmd"

func main() {
	cmd.Execute()
}
