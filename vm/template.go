package vm

import (
	"regexp"
	"strconv"
	"strings"
)

const placeholder = "PLACEHOLDER"

var exactTags = map[string]string{
	"hero name":         placeholder,
	"hero job":          placeholder,
	"name hero":         placeholder,
	"name job":          placeholder,
	"time":              "01:12",
	"award item":        placeholder,
	"challenge title":   placeholder,
	"pl_name":           placeholder,
	"pl_job":            placeholder,
	"last_word":         placeholder,
	"last_chat":         placeholder,
	"team_name":         placeholder,
	"meseta_slot_prize": placeholder,
}

var (
	colorTag         = regexp.MustCompile(`^color ([0-9]+)$`)
	unsignedRegTag   = regexp.MustCompile(`^r([0-9]{1,3})$`)
	floatRegisterTag = regexp.MustCompile(`^f([0-9]{1,3})$`)
)

// renderTemplate replaces <tag> sequences in s. Unknown tags render empty and
// an unterminated trailing tag is dropped. Substituted text is not scanned
// again.
func (vm *VM) renderTemplate(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	tagStart := -1
	last := 0
	for i := 0; i < len(s); i++ {
		switch {
		case tagStart >= 0 && s[i] == '>':
			out.WriteString(s[last:tagStart])
			out.WriteString(vm.resolveTag(s[tagStart+1 : i]))
			last = i + 1
			tagStart = -1
		case s[i] == '<':
			tagStart = i
		}
	}

	if tagStart >= 0 {
		out.WriteString(s[last:tagStart])
	} else {
		out.WriteString(s[last:])
	}
	return out.String()
}

func (vm *VM) resolveTag(key string) string {
	if m := colorTag.FindStringSubmatch(key); m != nil {
		return "<color " + m[1] + ">"
	}
	if m := unsignedRegTag.FindStringSubmatch(key); m != nil {
		if reg, ok := registerNumber(m[1]); ok {
			return strconv.FormatUint(uint64(vm.registers.Unsigned(reg)), 10)
		}
		return ""
	}
	if m := floatRegisterTag.FindStringSubmatch(key); m != nil {
		if reg, ok := registerNumber(m[1]); ok {
			return strconv.FormatFloat(float64(vm.registers.Float(reg)), 'f', 6, 64)
		}
		return ""
	}
	return exactTags[key]
}

func registerNumber(s string) (uint8, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n >= RegisterCount {
		return 0, false
	}
	return uint8(n), true
}
