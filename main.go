package main

import "github.com/samsaffron/localagent/cmd"

func main() {
	cmd.Execute()
}
