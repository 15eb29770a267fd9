// The roomchat command runs the multi-room chat server.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := app().Run(os.Args); err != nil {
		fmt.Printf("roomchat error: %v\n", err)
		os.Exit(1)
	}
}

func app() *cli.App {
	app := cli.NewApp()
	app.Name = "roomchat"
	app.Usage = "multi-room TCP chat server"
	app.Commands = []*cli.Command{
		serverCommand(),
	}
	// Running without a subcommand starts the server, same as "roomchat server".
	app.Flags = configFlags()
	app.Action = runServer

	return app
}
