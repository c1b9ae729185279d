package vm

import (
	"strings"

	"github.com/DaanVandenBosch/phantasmal-world-sub003/asm"
	"github.com/tliron/commonlog"
)

// IO is the boundary between the VM and the host. The VM calls it for every
// engine-visible effect.
type IO interface {
	WindowMsg(msg string)
	Message(msg string)
	AddMsg(msg string)
	WinEnd()
	MesEnd()
	List(items []string)

	// PDeadV3 reports whether the player in the given slot is dead.
	PDeadV3(slot uint32) bool
	SetFloorHandler(area uint32, label uint32)
	MapDesignate(area int32, variant int32)

	// Warning reports a recoverable problem. loc is nil when the offending
	// instruction has no source information.
	Warning(msg string, loc *asm.AsmToken)
	// Error reports a fatal error. The VM halts right after.
	Error(err error, loc *asm.AsmToken)
}

// DefaultIO logs every callback.
type DefaultIO struct {
	Log commonlog.Logger
}

// NewDefaultIO returns a DefaultIO logging to the "questvm.vm" logger.
func NewDefaultIO() *DefaultIO {
	return &DefaultIO{Log: commonlog.GetLogger("questvm.vm")}
}

func (d *DefaultIO) WindowMsg(msg string) {
	d.Log.Infof("window_msg %q", msg)
}

func (d *DefaultIO) Message(msg string) {
	d.Log.Infof("message %q", msg)
}

func (d *DefaultIO) AddMsg(msg string) {
	d.Log.Infof("add_msg %q", msg)
}

func (d *DefaultIO) WinEnd() {
	d.Log.Info("winend")
}

func (d *DefaultIO) MesEnd() {
	d.Log.Info("mesend")
}

func (d *DefaultIO) List(items []string) {
	d.Log.Infof("list [%s]", strings.Join(items, ", "))
}

func (d *DefaultIO) PDeadV3(slot uint32) bool {
	d.Log.Debugf("p_dead_v3 %d", slot)
	return false
}

func (d *DefaultIO) SetFloorHandler(area uint32, label uint32) {
	d.Log.Debugf("set_floor_handler %d %d", area, label)
}

func (d *DefaultIO) MapDesignate(area int32, variant int32) {
	d.Log.Debugf("map_designate %d %d", area, variant)
}

func (d *DefaultIO) Warning(msg string, loc *asm.AsmToken) {
	if loc != nil {
		d.Log.Warningf("%s: %s", loc, msg)
	} else {
		d.Log.Warning(msg)
	}
}

func (d *DefaultIO) Error(err error, loc *asm.AsmToken) {
	if loc != nil {
		d.Log.Errorf("%s: %s", loc, err)
	} else {
		d.Log.Error(err.Error())
	}
}
