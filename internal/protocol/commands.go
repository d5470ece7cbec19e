package protocol

// Command groups
const (
	CmdHardware uint8 = 0x01
	CmdIO       uint8 = 0x02
	CmdRS485    uint8 = 0x03
	CmdNetwork  uint8 = 0x04

	CmdScene      uint8 = 0x10
	CmdSchedule   uint8 = 0x11
	CmdMultiScene uint8 = 0x12
	CmdSequence   uint8 = 0x13
	CmdKNX        uint8 = 0x14
	CmdCurtain    uint8 = 0x15
)

// Sub-commands
const (
	SubHardwareInfo    uint8 = 0x04
	SubSetHardwareMode uint8 = 0x05

	SubIOInputs   uint8 = 0x01
	SubIOOutputs  uint8 = 0x02
	SubIOACOutput uint8 = 0x03

	SubRS485Channel uint8 = 0x01

	SubChangeIP    uint8 = 0x01
	SubChangeCanID uint8 = 0x02

	SubCategoryDelete uint8 = 0x01
	SubCategorySend   uint8 = 0x02
)

// Reply status codes (first data byte of a reply)
const (
	StatusOK       uint8 = 0x00
	StatusRejected uint8 = 0x01
	StatusBusy     uint8 = 0x02
	StatusInvalid  uint8 = 0x03
)

// Command is a command/sub-command pair.
type Command struct {
	Code uint8
	Sub  uint8
}

func (c Command) Frame(target CanID, data []byte) *Frame {
	return &Frame{
		Target:     target,
		Command:    c.Code,
		SubCommand: c.Sub,
		Data:       data,
	}
}

// CommandOf returns the command/sub-command pair of f.
func CommandOf(f *Frame) Command {
	return Command{Code: f.Command, Sub: f.SubCommand}
}

// Matches reports whether f is a reply to c.
func (c Command) Matches(f *Frame) bool {
	return f.Command == c.Code && f.SubCommand == c.Sub
}

func StatusText(status uint8) string {
	switch status {
	case StatusOK:
		return "ok"
	case StatusRejected:
		return "rejected"
	case StatusBusy:
		return "busy"
	case StatusInvalid:
		return "invalid payload"
	default:
		return "unknown status"
	}
}
