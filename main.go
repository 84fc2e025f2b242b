package main

import "github.com/linesmerrill/police-dispatch-api/cmd"

func main() {
	cmd.Execute()
}
