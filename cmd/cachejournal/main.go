package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goforj/cachejournal/internal/command"
	mylog "github.com/goforj/cachejournal/internal/log"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	mylog.InitLogger()

	app := command.InitApp()
	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
