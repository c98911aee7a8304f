package main

import "github.com/voltpower/volt/cmd"

func main() {
	cmd.Execute()
}
