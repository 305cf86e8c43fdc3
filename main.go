package main

import "github.com/1drturtle/GatesBot/cmd"

func main() {
	cmd.Execute()
}
