// Command envbeacon runs an environmental sensor node on a host with a
// Bluetooth adapter and builds advertising frames for inspection.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/epsg-gti/envbeacon/node"
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "envbeacon"
	app.Usage = "publish environmental readings over Bluetooth LE"
	app.Version = node.DefaultFirmware.String()
	app.Commands = []cli.Command{
		cli.Command{
			Name:   "run",
			Usage:  "Sample the sensors and publish the readings until interrupted",
			Flags:  runFlags,
			Action: runCommand,
		},
		cli.Command{
			Name:  "frame",
			Usage: "Print the manufacturer data of an advertising frame",
			Subcommands: []cli.Command{
				cli.Command{
					Name:      "ibeacon",
					Usage:     "iBeacon frame",
					Flags:     append(frameFlags, ibeaconFlags...),
					Action:    ibeaconCommand,
					ArgsUsage: " ",
				},
				cli.Command{
					Name:      "freeform",
					Usage:     "Up to 21 bytes of text behind the iBeacon prefix",
					Flags:     frameFlags,
					Action:    freeformCommand,
					ArgsUsage: "TEXT",
				},
				cli.Command{
					Name:      "multi",
					Usage:     "Raw data behind the company ID",
					Flags:     frameFlags,
					Action:    multiCommand,
					ArgsUsage: "HEX",
				},
				cli.Command{
					Name:   "readings",
					Usage:  "Multi-field frame carrying all readings",
					Flags:  append(frameFlags, readingsFlags...),
					Action: readingsCommand,
				},
			},
		},
		cli.Command{
			Name:      "uuid",
			Usage:     "Print the UUID built from a text identifier of up to 16 characters",
			Action:    uuidCommand,
			ArgsUsage: "TEXT",
		},
		cli.Command{
			Name:   "ports",
			Usage:  "List the serial ports logs can be sent to",
			Action: portsCommand,
		},
		cli.Command{
			Name:   "config",
			Usage:  "Print the default configuration file",
			Action: configCommand,
		},
	}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "envbeacon:", err)
		os.Exit(1)
	}
}
