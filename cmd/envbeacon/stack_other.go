//go:build !linux

package main

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/epsg-gti/envbeacon"
)

func newBlueZ(log logrus.FieldLogger) (envbeacon.Stack, error) {
	return nil, errors.New("the bluez stack is only available on Linux")
}
