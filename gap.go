package envbeacon

import (
	"encoding/binary"
	"errors"
	"time"
)

// MaxAdvertisingDataLen is the size of the application data in a legacy
// advertising or scan response packet.
const MaxAdvertisingDataLen = 31

// ADType is the type tag of an advertising data structure.
type ADType uint8

// Advertising data types used by the sensor node.
const (
	ADTypeFlags            ADType = 0x01
	ADTypeIncomplete16     ADType = 0x02
	ADTypeComplete16       ADType = 0x03
	ADTypeIncomplete128    ADType = 0x06
	ADTypeComplete128      ADType = 0x07
	ADTypeShortName        ADType = 0x08
	ADTypeCompleteName     ADType = 0x09
	ADTypeTxPower          ADType = 0x0A
	ADTypeManufacturerData ADType = 0xFF
)

// Advertising flags.
const (
	FlagLELimitedDiscoverable byte = 0x01
	FlagLEGeneralDiscoverable byte = 0x02
	FlagBREDRNotSupported     byte = 0x04

	// FlagsLEOnlyGeneralDiscoverable is the usual flags value for a BLE-only
	// peripheral (BLE_GAP_ADV_FLAGS_LE_ONLY_GENERAL_DISC_MODE).
	FlagsLEOnlyGeneralDiscoverable = FlagLEGeneralDiscoverable | FlagBREDRNotSupported
)

// iBeacon and free-form frame layout.
const (
	IBeaconFrameLen   = 25
	iBeaconSubtype    = 0x02
	iBeaconPayloadLen = 0x15

	// FreeformDataLen is the number of payload bytes in a free-form frame.
	FreeformDataLen = 21

	// FreeformPadding fills the unused tail of a free-form payload slot.
	FreeformPadding = '-'

	// MaxMultiFieldData is the largest multi-field payload that fits in one
	// advertising packet next to the flags structure: 31 - 3 (flags) - 2
	// (structure header) - 2 (company ID).
	MaxMultiFieldData = MaxAdvertisingDataLen - 3 - 2 - 2
)

var errNotIBeacon = errors.New("envbeacon: not an iBeacon frame")

// BeaconUUID identifies the sensor network in iBeacon frames. The bytes are
// sent as-is.
type BeaconUUID [16]byte

// BeaconUUIDFromText builds a beacon UUID from a 16 character text identifier
// using the same byte order as service and characteristic UUIDs.
func BeaconUUIDFromText(text string) BeaconUUID {
	return BeaconUUID(TextUUIDBytes(text))
}

// EncodeIBeacon returns the 25 byte manufacturer data of an iBeacon frame:
// company ID (little-endian), subtype 0x02, length 0x15, the beacon UUID,
// major and minor (big-endian) and the measured power at 1m.
func EncodeIBeacon(companyID uint16, uuid BeaconUUID, major, minor uint16, measuredPower int8) []byte {
	frame := make([]byte, IBeaconFrameLen)
	binary.LittleEndian.PutUint16(frame[0:2], companyID)
	frame[2] = iBeaconSubtype
	frame[3] = iBeaconPayloadLen
	copy(frame[4:20], uuid[:])
	binary.BigEndian.PutUint16(frame[20:22], major)
	binary.BigEndian.PutUint16(frame[22:24], minor)
	frame[24] = byte(measuredPower)
	return frame
}

// IBeacon is a decoded iBeacon frame.
type IBeacon struct {
	CompanyID     uint16
	UUID          BeaconUUID
	Major         uint16
	Minor         uint16
	MeasuredPower int8
}

// DecodeIBeacon parses the manufacturer data of an iBeacon frame.
func DecodeIBeacon(frame []byte) (IBeacon, error) {
	if len(frame) != IBeaconFrameLen || frame[2] != iBeaconSubtype || frame[3] != iBeaconPayloadLen {
		return IBeacon{}, errNotIBeacon
	}
	var b IBeacon
	b.CompanyID = binary.LittleEndian.Uint16(frame[0:2])
	copy(b.UUID[:], frame[4:20])
	b.Major = binary.BigEndian.Uint16(frame[20:22])
	b.Minor = binary.BigEndian.Uint16(frame[22:24])
	b.MeasuredPower = int8(frame[24])
	return b, nil
}

// EncodeFreeform returns a 25 byte manufacturer data frame that keeps the
// iBeacon prefix but carries an arbitrary payload in place of UUID, major,
// minor and power. Payloads longer than FreeformDataLen are truncated; shorter
// ones are padded with FreeformPadding.
func EncodeFreeform(companyID uint16, payload []byte) []byte {
	frame := make([]byte, 4+FreeformDataLen)
	binary.LittleEndian.PutUint16(frame[0:2], companyID)
	frame[2] = iBeaconSubtype
	frame[3] = FreeformDataLen
	n := copy(frame[4:], payload)
	for i := 4 + n; i < len(frame); i++ {
		frame[i] = FreeformPadding
	}
	return frame
}

// EncodeMultiField returns the company ID (little-endian) followed by data.
// The frame must fit in one advertising packet next to the flags structure,
// otherwise ErrAdvertisingDataOverflow is returned.
func EncodeMultiField(companyID uint16, data []byte) ([]byte, error) {
	if len(data) > MaxMultiFieldData {
		return nil, ErrAdvertisingDataOverflow
	}
	frame := make([]byte, 2+len(data))
	binary.LittleEndian.PutUint16(frame[0:2], companyID)
	copy(frame[2:], data)
	return frame, nil
}

// AdvertisingData is the raw content of one advertising or scan response
// packet: a sequence of length-type-value structures limited to 31 bytes.
type AdvertisingData struct {
	data [MaxAdvertisingDataLen]byte
	len  uint8
}

// Bytes returns the encoded structures.
func (buf *AdvertisingData) Bytes() []byte {
	return buf.data[:buf.len]
}

// Len returns the number of bytes in use.
func (buf *AdvertisingData) Len() int {
	return int(buf.len)
}

// Free returns the number of bytes still available.
func (buf *AdvertisingData) Free() int {
	return MaxAdvertisingDataLen - int(buf.len)
}

// Reset removes all structures.
func (buf *AdvertisingData) Reset() {
	buf.len = 0
}

// AddElement appends one structure. It returns ErrAdvertisingDataOverflow and
// leaves the buffer untouched if the structure does not fit.
func (buf *AdvertisingData) AddElement(typ ADType, data []byte) error {
	if len(data)+2 > buf.Free() {
		return ErrAdvertisingDataOverflow
	}
	buf.data[buf.len] = uint8(len(data) + 1)
	buf.data[buf.len+1] = uint8(typ)
	copy(buf.data[buf.len+2:], data)
	buf.len += uint8(len(data) + 2)
	return nil
}

// AddFlags appends the flags structure.
func (buf *AdvertisingData) AddFlags(flags byte) error {
	return buf.AddElement(ADTypeFlags, []byte{flags})
}

// AddManufacturerData appends a manufacturer specific data structure. The
// frame must start with the little-endian company ID.
func (buf *AdvertisingData) AddManufacturerData(frame []byte) error {
	return buf.AddElement(ADTypeManufacturerData, frame)
}

// AddLocalName appends the device name. If the complete name does not fit, a
// shortened name filling the remaining space is added instead.
func (buf *AdvertisingData) AddLocalName(name string) error {
	if len(name)+2 <= buf.Free() {
		return buf.AddElement(ADTypeCompleteName, []byte(name))
	}
	room := buf.Free() - 2
	if room <= 0 {
		return ErrAdvertisingDataOverflow
	}
	return buf.AddElement(ADTypeShortName, []byte(name[:room]))
}

// AddServiceUUID appends a complete list structure holding one service UUID,
// in 16-bit form when possible.
func (buf *AdvertisingData) AddServiceUUID(uuid UUID) error {
	if uuid.Is16Bit() {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uuid.Get16Bit())
		return buf.AddElement(ADTypeComplete16, b[:])
	}
	b := uuid.Bytes()
	return buf.AddElement(ADTypeComplete128, b[:])
}

// AddTxPower appends the transmit power level structure.
func (buf *AdvertisingData) AddTxPower(dbm int8) error {
	return buf.AddElement(ADTypeTxPower, []byte{byte(dbm)})
}

// Element returns the value of the first structure with the given type.
func (buf *AdvertisingData) Element(typ ADType) ([]byte, bool) {
	for i := 0; i+1 < int(buf.len); {
		l := int(buf.data[i])
		if l < 1 || i+1+l > int(buf.len) {
			break
		}
		if ADType(buf.data[i+1]) == typ {
			return buf.data[i+2 : i+1+l], true
		}
		i += l + 1
	}
	return nil, false
}

// ManufacturerData returns the company ID and payload of the manufacturer
// specific data structure, if present.
func (buf *AdvertisingData) ManufacturerData() (companyID uint16, data []byte, ok bool) {
	frame, ok := buf.Element(ADTypeManufacturerData)
	if !ok || len(frame) < 2 {
		return 0, nil, false
	}
	return binary.LittleEndian.Uint16(frame[0:2]), frame[2:], true
}

// LocalName returns the complete or shortened local name, if present.
func (buf *AdvertisingData) LocalName() (string, bool) {
	if name, ok := buf.Element(ADTypeCompleteName); ok {
		return string(name), true
	}
	if name, ok := buf.Element(ADTypeShortName); ok {
		return string(name), true
	}
	return "", false
}

// ServiceUUIDs returns the service UUIDs listed in the data.
func (buf *AdvertisingData) ServiceUUIDs() []UUID {
	var uuids []UUID
	for i := 0; i+1 < int(buf.len); {
		l := int(buf.data[i])
		if l < 1 || i+1+l > int(buf.len) {
			break
		}
		value := buf.data[i+2 : i+1+l]
		switch ADType(buf.data[i+1]) {
		case ADTypeIncomplete16, ADTypeComplete16:
			for j := 0; j+1 < len(value); j += 2 {
				uuids = append(uuids, New16BitUUID(binary.LittleEndian.Uint16(value[j:])))
			}
		case ADTypeIncomplete128, ADTypeComplete128:
			for j := 0; j+15 < len(value); j += 16 {
				var b [16]byte
				copy(b[:], value[j:j+16])
				uuids = append(uuids, NewUUID(b))
			}
		}
		i += l + 1
	}
	return uuids
}

// AdvertisingInterval is an advertising interval in 0.625ms units.
type AdvertisingInterval uint16

// DefaultAdvertisingInterval is 100 units, 62.5ms.
const DefaultAdvertisingInterval AdvertisingInterval = 100

// NewAdvertisingInterval returns the interval closest to d.
func NewAdvertisingInterval(d time.Duration) AdvertisingInterval {
	const unit = 625 * time.Microsecond
	return AdvertisingInterval((d + unit/2) / unit)
}

// Duration returns the interval as a time.Duration.
func (i AdvertisingInterval) Duration() time.Duration {
	return time.Duration(i) * 625 * time.Microsecond
}
