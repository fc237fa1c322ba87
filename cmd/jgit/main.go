package main

import "github.com/aweris/jgit/cmd/jgit/cmd"

func main() {
	cmd.Execute()
}
