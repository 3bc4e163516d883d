package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli"

	"github.com/epsg-gti/envbeacon"
	"github.com/epsg-gti/envbeacon/config"
	"github.com/epsg-gti/envbeacon/node"
	"github.com/epsg-gti/envbeacon/sensor"
)

var errArgs = errors.New("wrong number of arguments")

var frameFlags = []cli.Flag{
	cli.IntFlag{
		Name:  "company",
		Usage: "Company ID",
		Value: envbeacon.CompanyIDApple,
	},
}

var ibeaconFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "uuid",
		Usage: "Beacon UUID, canonical or up to 16 characters of text",
		Value: node.DefaultBeaconText,
	},
	cli.IntFlag{
		Name:  "measurement",
		Usage: "Measurement ID sent in the high byte of major (11 CO2, 12 temperature, 13 noise, 14 ozone, 15 battery)",
		Value: int(node.MeasurementCO2),
	},
	cli.IntFlag{
		Name:  "counter",
		Usage: "Counter sent in the low byte of major",
	},
	cli.IntFlag{
		Name:  "minor",
		Usage: "Measured value",
	},
	cli.IntFlag{
		Name:  "power",
		Usage: "Measured power at 1m in dBm",
		Value: int(node.DefaultMeasuredPower),
	},
}

var readingsFlags = []cli.Flag{
	cli.IntFlag{Name: "counter"},
	cli.IntFlag{Name: "co2", Usage: "CO2 in ppm"},
	cli.IntFlag{Name: "temperature", Usage: "Temperature in tenths of a degree Celsius"},
	cli.Float64Flag{Name: "ozone", Usage: "Ozone in ppm"},
	cli.IntFlag{Name: "battery", Usage: "Battery level in percent"},
}

func printFrame(c *cli.Context, frame []byte) {
	fmt.Fprintf(c.App.Writer, "% X\n", frame)
}

func ibeaconCommand(c *cli.Context) (err error) {
	cfg := config.Default()
	cfg.BeaconUUID = c.String("uuid")
	uuid, err := cfg.Beacon()
	if err != nil {
		return err
	}
	major := node.Major(node.MeasurementID(c.Int("measurement")), uint8(c.Int("counter")))
	frame := envbeacon.EncodeIBeacon(uint16(c.Int("company")), uuid, major, uint16(c.Int("minor")), int8(c.Int("power")))
	printFrame(c, frame)
	return nil
}

func freeformCommand(c *cli.Context) (err error) {
	if c.NArg() != 1 {
		return errArgs
	}
	printFrame(c, envbeacon.EncodeFreeform(uint16(c.Int("company")), []byte(c.Args().First())))
	return nil
}

func multiCommand(c *cli.Context) (err error) {
	if c.NArg() != 1 {
		return errArgs
	}
	data, err := hex.DecodeString(strings.ReplaceAll(c.Args().First(), " ", ""))
	if err != nil {
		return err
	}
	frame, err := envbeacon.EncodeMultiField(uint16(c.Int("company")), data)
	if err != nil {
		return err
	}
	printFrame(c, frame)
	return nil
}

func readingsCommand(c *cli.Context) (err error) {
	r := sensor.Readings{
		CO2:         uint16(c.Int("co2")),
		Temperature: int16(c.Int("temperature")),
		Ozone:       c.Float64("ozone"),
		Battery:     uint8(c.Int("battery")),
	}
	frame, err := envbeacon.EncodeMultiField(uint16(c.Int("company")), node.EncodeReadings(uint8(c.Int("counter")), r))
	if err != nil {
		return err
	}
	printFrame(c, frame)
	return nil
}

func uuidCommand(c *cli.Context) (err error) {
	if c.NArg() != 1 {
		return errArgs
	}
	text := c.Args().First()
	if len(text) > envbeacon.TextUUIDLen {
		return fmt.Errorf("%q is longer than %d characters", text, envbeacon.TextUUIDLen)
	}
	uuid := envbeacon.TextUUID(text)
	b := uuid.Bytes()
	fmt.Fprintln(c.App.Writer, uuid.String())
	fmt.Fprintf(c.App.Writer, "% X\n", b[:])
	return nil
}
