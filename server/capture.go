package server

import (
	"fmt"
	"strings"

	"github.com/DaanVandenBosch/phantasmal-world-sub003/asm"
	"github.com/DaanVandenBosch/phantasmal-world-sub003/vm"
)

// captureIO buffers the VM's I/O callbacks so Execute can return them, then
// forwards each callback to next. Only the worker goroutine touches it.
type captureIO struct {
	next  vm.IO
	lines []string
}

func (c *captureIO) add(format string, args ...any) {
	c.lines = append(c.lines, fmt.Sprintf(format, args...))
}

// drain returns the buffered lines and empties the buffer.
func (c *captureIO) drain() []string {
	lines := c.lines
	c.lines = nil
	return lines
}

func (c *captureIO) WindowMsg(msg string) {
	c.add("window_msg %s", msg)
	c.next.WindowMsg(msg)
}

func (c *captureIO) Message(msg string) {
	c.add("message %s", msg)
	c.next.Message(msg)
}

func (c *captureIO) AddMsg(msg string) {
	c.add("add_msg %s", msg)
	c.next.AddMsg(msg)
}

func (c *captureIO) WinEnd() {
	c.add("winend")
	c.next.WinEnd()
}

func (c *captureIO) MesEnd() {
	c.add("mesend")
	c.next.MesEnd()
}

func (c *captureIO) List(items []string) {
	c.add("list %s", strings.Join(items, "|"))
	c.next.List(items)
}

func (c *captureIO) PDeadV3(slot uint32) bool {
	return c.next.PDeadV3(slot)
}

func (c *captureIO) SetFloorHandler(area uint32, label uint32) {
	c.add("set_floor_handler %d %d", area, label)
	c.next.SetFloorHandler(area, label)
}

func (c *captureIO) MapDesignate(area int32, variant int32) {
	c.add("map_designate %d %d", area, variant)
	c.next.MapDesignate(area, variant)
}

func (c *captureIO) Warning(msg string, loc *asm.AsmToken) {
	if loc != nil {
		c.add("warning %s: %s", loc, msg)
	} else {
		c.add("warning %s", msg)
	}
	c.next.Warning(msg, loc)
}

func (c *captureIO) Error(err error, loc *asm.AsmToken) {
	if loc != nil {
		c.add("error %s: %s", loc, err)
	} else {
		c.add("error %s", err)
	}
	c.next.Error(err, loc)
}
