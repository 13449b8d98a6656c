package main

import "github.com/icco/buzzer/cmd"

func main() {
	cmd.Execute()
}
