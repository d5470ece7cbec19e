package protocol

import (
	"encoding/binary"
	"fmt"
)

// HardwareInfoMinLength is the length field a reply must exceed to count as
// a hardware info reply. Shorter replies are noise or echoed probes. The
// value comes from observed hardware; it is not derived from a document.
const HardwareInfoMinLength = 90

// DiscoveryCommand asks a unit for its hardware info.
var DiscoveryCommand = Command{Code: CmdHardware, Sub: SubHardwareInfo}

// NewDiscoveryRequest builds the probe for target ("0.0.0.0" = every unit).
func NewDiscoveryRequest(target string) ([]byte, error) {
	id, err := ParseCanID(target)
	if err != nil {
		return nil, fmt.Errorf("discovery target: %w", err)
	}
	return DiscoveryCommand.Frame(id, nil).Encode()
}

// AcceptDiscoveryResponse is the accept predicate for received datagrams.
func AcceptDiscoveryResponse(datagram []byte) bool {
	if len(datagram) < 6 {
		return false
	}
	return binary.LittleEndian.Uint16(datagram[4:6]) > HardwareInfoMinLength
}
