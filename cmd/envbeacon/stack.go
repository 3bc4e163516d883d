package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/epsg-gti/envbeacon"
	"github.com/epsg-gti/envbeacon/config"
	"github.com/epsg-gti/envbeacon/stack/tinygostack"
)

// newStack returns the radio stack named in the configuration.
func newStack(name string, log logrus.FieldLogger) (envbeacon.Stack, error) {
	switch name {
	case config.StackTinyGo:
		return tinygostack.New(bluetooth.DefaultAdapter, log), nil
	case config.StackBlueZ:
		return newBlueZ(log)
	}
	return nil, fmt.Errorf("unknown stack %q", name)
}
