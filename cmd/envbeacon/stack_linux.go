package main

import (
	"github.com/sirupsen/logrus"

	"github.com/epsg-gti/envbeacon"
	"github.com/epsg-gti/envbeacon/stack/bluezstack"
)

func newBlueZ(log logrus.FieldLogger) (envbeacon.Stack, error) {
	return bluezstack.New(log), nil
}
