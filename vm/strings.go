package vm

import (
	"fmt"

	"golang.org/x/text/encoding/unicode"
)

const (
	// StringArgStoreAddress is the address arg_pushs pushes. Dereferencing it
	// yields the last pushed string.
	StringArgStoreAddress = 0x00A92700
	// StringArgStoreSize is the capacity in bytes of the UTF-16LE string
	// argument store.
	StringArgStoreSize = 1024
)

var utf16LE = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// encodeStringArg encodes s as UTF-16LE, truncated to the store's capacity.
func encodeStringArg(s string) []byte {
	b, err := utf16LE.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil
	}
	if len(b) > StringArgStoreSize {
		b = b[:StringArgStoreSize]
	}
	return b
}

func decodeUTF16LE(b []byte) string {
	s, err := utf16LE.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(s)
}

// derefString resolves a string pointer: either the string argument store or
// a NUL-terminated UTF-16LE string inside the register bank.
func (vm *VM) derefString(addr uint32) (string, error) {
	if addr == StringArgStoreAddress {
		return decodeUTF16LE(vm.stringArgStore), nil
	}
	if addr > 0 && addr < MemorySize {
		b := vm.registers.Bytes(int(addr))
		end := len(b) &^ 1
		for i := 0; i+1 < len(b); i += 2 {
			if b[i] == 0 && b[i+1] == 0 {
				end = i
				break
			}
		}
		return decodeUTF16LE(b[:end]), nil
	}
	return "", fmt.Errorf("%w 0x%x", ErrInvalidStringAddress, addr)
}
