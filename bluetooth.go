// Package envbeacon implements the Bluetooth Low Energy peripheral layer of a
// battery powered environmental sensor node.
//
// It builds iBeacon and manufacturer specific advertising frames within the
// 31 byte advertising budget, composes GATT services and characteristics from
// human readable identifiers, and drives the advertising lifecycle of a radio
// stack through the Stack interface. Concrete stacks live in the stack/
// sub-packages; MockStack is an in-memory stack for tests and dry runs.
package envbeacon // import "github.com/epsg-gti/envbeacon"
