/*
CLI for the ARQ link simulator
*/
package main

import (
	"github.com/iti/arqsim/cmd/arqsim/commands"
)

func main() {
	commands.Execute()
}
