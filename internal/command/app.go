package command

import (
	"github.com/urfave/cli/v3"
)

// InitApp builds the cachejournal command tree.
func InitApp() *cli.Command {
	app := &cli.Command{
		Name:  "cachejournal",
		Usage: "store values in a cache backend and replay the call journal",
		Flags: NewGlobalFlags(),
	}
	app.Commands = append(app.Commands,
		RunCommandBuilder(),
	)
	return app
}
