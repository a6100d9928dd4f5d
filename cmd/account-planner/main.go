package main

import (
	"os"

	"github.com/spherical/account-planner/cmd/account-planner/commands"
	"github.com/spherical/account-planner/cmd/account-planner/ui"
)

func main() {
	if err := commands.Execute(); err != nil {
		ui.Error("%v", err)
		os.Exit(1)
	}
}
