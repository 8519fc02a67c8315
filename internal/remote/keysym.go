package remote

import (
	"fmt"
	"unicode/utf8"
)

// X11 keysym values for named keys.
var keysyms = map[string]uint32{
	"BackSpace":   0xff08,
	"Tab":         0xff09,
	"Linefeed":    0xff0a,
	"Clear":       0xff0b,
	"Return":      0xff0d,
	"Pause":       0xff13,
	"Scroll_Lock": 0xff14,
	"Sys_Req":     0xff15,
	"Escape":      0xff1b,
	"Delete":      0xffff,
	"Home":        0xff50,
	"Left":        0xff51,
	"Up":          0xff52,
	"Right":       0xff53,
	"Down":        0xff54,
	"Prior":       0xff55,
	"Page_Up":     0xff55,
	"Next":        0xff56,
	"Page_Down":   0xff56,
	"End":         0xff57,
	"Begin":       0xff58,
	"Print":       0xff61,
	"Insert":      0xff63,
	"Menu":        0xff67,
	"Num_Lock":    0xff7f,
	"KP_Enter":    0xff8d,
	"KP_Add":      0xffab,
	"KP_Subtract": 0xffad,
	"KP_Multiply": 0xffaa,
	"KP_Divide":   0xffaf,
	"KP_Decimal":  0xffae,
	"F1":          0xffbe,
	"F2":          0xffbf,
	"F3":          0xffc0,
	"F4":          0xffc1,
	"F5":          0xffc2,
	"F6":          0xffc3,
	"F7":          0xffc4,
	"F8":          0xffc5,
	"F9":          0xffc6,
	"F10":         0xffc7,
	"F11":         0xffc8,
	"F12":         0xffc9,
	"Shift_L":     0xffe1,
	"Shift_R":     0xffe2,
	"Control_L":   0xffe3,
	"Control_R":   0xffe4,
	"Caps_Lock":   0xffe5,
	"Meta_L":      0xffe7,
	"Meta_R":      0xffe8,
	"Alt_L":       0xffe9,
	"Alt_R":       0xffea,
	"Super_L":     0xffeb,
	"Super_R":     0xffec,
	"Hyper_L":     0xffed,
	"Hyper_R":     0xffee,

	"space":        0x0020,
	"exclam":       0x0021,
	"quotedbl":     0x0022,
	"numbersign":   0x0023,
	"dollar":       0x0024,
	"percent":      0x0025,
	"ampersand":    0x0026,
	"apostrophe":   0x0027,
	"parenleft":    0x0028,
	"parenright":   0x0029,
	"asterisk":     0x002a,
	"plus":         0x002b,
	"comma":        0x002c,
	"minus":        0x002d,
	"period":       0x002e,
	"slash":        0x002f,
	"colon":        0x003a,
	"semicolon":    0x003b,
	"less":         0x003c,
	"equal":        0x003d,
	"greater":      0x003e,
	"question":     0x003f,
	"at":           0x0040,
	"bracketleft":  0x005b,
	"backslash":    0x005c,
	"bracketright": 0x005d,
	"asciicircum":  0x005e,
	"underscore":   0x005f,
	"grave":        0x0060,
	"braceleft":    0x007b,
	"bar":          0x007c,
	"braceright":   0x007d,
	"asciitilde":   0x007e,
}

// Keysym resolves a key name such as "Control_L", "space" or "a".
// A single printable character names itself.
func Keysym(name string) (uint32, error) {
	if sym, ok := keysyms[name]; ok {
		return sym, nil
	}
	if r, size := utf8.DecodeRuneInString(name); size == len(name) && r != utf8.RuneError && r > 0x20 {
		return runeKeysym(r), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKey, name)
}

// runeKeysym maps a character to the keysym that types it.
func runeKeysym(r rune) uint32 {
	switch r {
	case '\n', '\r':
		return keysyms["Return"]
	case '\t':
		return keysyms["Tab"]
	case '\b':
		return keysyms["BackSpace"]
	}
	if (r >= 0x20 && r <= 0x7e) || (r >= 0xa0 && r <= 0xff) {
		return uint32(r)
	}
	return 0x01000000 | uint32(r)
}

// resolveKeys maps every name or fails on the first unknown one.
func resolveKeys(names []string) ([]uint32, error) {
	syms := make([]uint32, len(names))
	for i, name := range names {
		sym, err := Keysym(name)
		if err != nil {
			return nil, err
		}
		syms[i] = sym
	}
	return syms, nil
}
