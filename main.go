package main

import "github.com/reloquent/catalogmap/cmd"

func main() {
	cmd.Execute()
}
