package commands

import (
	"fmt"

	"github.com/KevinKickass/OpenUnitSync/internal/protocol"
	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

type categoryCommands struct {
	delete protocol.Command
	send   protocol.Command
}

func category(code uint8) categoryCommands {
	return categoryCommands{
		delete: protocol.Command{Code: code, Sub: protocol.SubCategoryDelete},
		send:   protocol.Command{Code: code, Sub: protocol.SubCategorySend},
	}
}

// categoryTable has one entry per ConfigCategory.
var categoryTable = [types.CategoryCount]categoryCommands{
	types.CategoryScenes:      category(protocol.CmdScene),
	types.CategorySchedules:   category(protocol.CmdSchedule),
	types.CategoryMultiScenes: category(protocol.CmdMultiScene),
	types.CategorySequences:   category(protocol.CmdSequence),
	types.CategoryKNX:         category(protocol.CmdKNX),
	types.CategoryCurtain:     category(protocol.CmdCurtain),
}

func commandsFor(c types.ConfigCategory) categoryCommands {
	if !c.Valid() {
		panic(fmt.Sprintf("unknown config category %d", int(c)))
	}
	return categoryTable[c]
}

var ioCommands = map[types.IOGroup]protocol.Command{
	types.IOGroupInputs:  {Code: protocol.CmdIO, Sub: protocol.SubIOInputs},
	types.IOGroupOutputs: {Code: protocol.CmdIO, Sub: protocol.SubIOOutputs},
	types.IOGroupAircon:  {Code: protocol.CmdIO, Sub: protocol.SubIOACOutput},
}

var (
	setHardwareMode = protocol.Command{Code: protocol.CmdHardware, Sub: protocol.SubSetHardwareMode}
	setRS485Channel = protocol.Command{Code: protocol.CmdRS485, Sub: protocol.SubRS485Channel}
	changeIP        = protocol.Command{Code: protocol.CmdNetwork, Sub: protocol.SubChangeIP}
	changeCanID     = protocol.Command{Code: protocol.CmdNetwork, Sub: protocol.SubChangeCanID}
)
