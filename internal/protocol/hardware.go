package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

// Hardware info reply offsets (absolute, within the datagram)
const (
	hwUnitTypeOffset = 8
	hwSerialOffset   = 10
	hwSerialSize     = 16
	hwModeOffset     = 26
	hwFlagsOffset    = 27
	hwIPOffset       = 28
	hwFirmwareOffset = 32
	hwMinSize        = 34

	flagCanLoad  = 0x01
	flagRecovery = 0x02
)

// HardwareInfo is the decoded content of a discovery reply.
type HardwareInfo struct {
	CanID        CanID
	UnitType     types.UnitType
	SerialNumber string
	Mode         types.UnitMode
	CanLoad      bool
	RecoveryMode bool
	IPAddress    net.IP
	Firmware     string
}

// DecodeHardwareInfo reads a datagram that passed AcceptDiscoveryResponse.
func DecodeHardwareInfo(datagram []byte) (*HardwareInfo, error) {
	if len(datagram) < hwMinSize {
		return nil, types.NewProtocolError("hardware info too short: %d bytes", len(datagram))
	}

	mode := types.UnitMode(datagram[hwModeOffset])
	if mode > types.ModeMaster {
		return nil, types.NewProtocolError("unknown unit mode %d", datagram[hwModeOffset])
	}

	serial := datagram[hwSerialOffset : hwSerialOffset+hwSerialSize]
	if i := bytes.IndexByte(serial, 0); i >= 0 {
		serial = serial[:i]
	}

	flags := datagram[hwFlagsOffset]
	ip := net.IPv4(datagram[hwIPOffset], datagram[hwIPOffset+1], datagram[hwIPOffset+2], datagram[hwIPOffset+3])

	return &HardwareInfo{
		CanID:        canIDFromWire(datagram[0:idSize]),
		UnitType:     types.UnitType(binary.LittleEndian.Uint16(datagram[hwUnitTypeOffset:])),
		SerialNumber: string(bytes.TrimSpace(serial)),
		Mode:         mode,
		CanLoad:      flags&flagCanLoad != 0,
		RecoveryMode: flags&flagRecovery != 0,
		IPAddress:    ip,
		Firmware:     fmt.Sprintf("%d.%d", datagram[hwFirmwareOffset], datagram[hwFirmwareOffset+1]),
	}, nil
}

// EncodeHardwareInfo builds a hardware info reply. Used by unit simulators
// and tests; the reply is padded so its length field passes the accept
// predicate.
func EncodeHardwareInfo(info *HardwareInfo) ([]byte, error) {
	data := make([]byte, HardwareInfoMinLength)
	binary.LittleEndian.PutUint16(data[hwUnitTypeOffset-headerSize:], uint16(info.UnitType))
	copy(data[hwSerialOffset-headerSize:hwSerialOffset-headerSize+hwSerialSize], info.SerialNumber)
	data[hwModeOffset-headerSize] = byte(info.Mode)

	var flags byte
	if info.CanLoad {
		flags |= flagCanLoad
	}
	if info.RecoveryMode {
		flags |= flagRecovery
	}
	data[hwFlagsOffset-headerSize] = flags

	if ip4 := info.IPAddress.To4(); ip4 != nil {
		copy(data[hwIPOffset-headerSize:], ip4)
	}

	var major, minor int
	fmt.Sscanf(info.Firmware, "%d.%d", &major, &minor)
	data[hwFirmwareOffset-headerSize] = byte(major)
	data[hwFirmwareOffset-headerSize+1] = byte(minor)

	return DiscoveryCommand.Frame(info.CanID, data).Encode()
}
