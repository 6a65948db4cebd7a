package monitor

import "strings"

type keyVerdict int

const (
	keyAllowed keyVerdict = iota
	keyDevTools
	keySavePrint
	keyClipboard
)

// classifyKey maps a key combination onto the blocked gesture families.
func classifyKey(sig Signal) (keyVerdict, string) {
	key := strings.ToLower(strings.TrimSpace(sig.Key))
	mod := sig.Ctrl || sig.Meta

	switch {
	case key == "f12":
		return keyDevTools, "F12"
	case mod && sig.Shift && (key == "i" || key == "j" || key == "c"):
		return keyDevTools, comboName(sig, key)
	case mod && key == "u":
		return keyDevTools, comboName(sig, key)
	case mod && (key == "s" || key == "p"):
		return keySavePrint, comboName(sig, key)
	case mod && !sig.Shift && (key == "c" || key == "v" || key == "x" || key == "a"):
		return keyClipboard, comboName(sig, key)
	}
	return keyAllowed, ""
}

func comboName(sig Signal, key string) string {
	var b strings.Builder
	if sig.Meta {
		b.WriteString("Cmd+")
	} else if sig.Ctrl {
		b.WriteString("Ctrl+")
	}
	if sig.Shift {
		b.WriteString("Shift+")
	}
	if sig.Alt {
		b.WriteString("Alt+")
	}
	b.WriteString(strings.ToUpper(key))
	return b.String()
}
