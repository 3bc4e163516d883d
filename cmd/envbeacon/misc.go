package main

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/epsg-gti/envbeacon/config"
	"github.com/epsg-gti/envbeacon/console"
)

func portsCommand(c *cli.Context) (err error) {
	ports, err := console.Ports()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(c.App.Writer, "no serial ports found")
	}
	for _, port := range ports {
		fmt.Fprintln(c.App.Writer, port)
	}
	return nil
}

func configCommand(c *cli.Context) (err error) {
	data, err := config.Default().Marshal()
	if err != nil {
		return err
	}
	_, err = c.App.Writer.Write(data)
	return err
}
