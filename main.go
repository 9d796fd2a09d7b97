package main

import "github.com/senses3/coolercontrol/cmd"

func main() {
	cmd.Execute()
}
