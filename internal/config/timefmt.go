package config

import "strings"

// Clock presets accepted for Time buttons.
var clockPresets = map[string]string{
	"24hr": "15:04",
	"12hr": "3:04 PM",
}

var strftime = map[byte]string{
	'a': "Mon",
	'A': "Monday",
	'b': "Jan",
	'B': "January",
	'h': "Jan",
	'd': "02",
	'e': "_2",
	'H': "15",
	'I': "03",
	'l': "3",
	'M': "04",
	'S': "05",
	'p': "PM",
	'Y': "2006",
	'y': "06",
	'm': "01",
	'Z': "MST",
	'z': "-0700",
	'%': "%",
}

// TimeLayout turns a Time button setting into a Go time layout. It accepts
// the presets "24hr" and "12hr", strftime-style formats such as
// "%a %b %d %I:%M %p", and plain Go layouts.
func TimeLayout(s string) string {
	if l, ok := clockPresets[s]; ok {
		return l
	}
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '%' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		if l, ok := strftime[s[i+1]]; ok {
			b.WriteString(l)
			i++
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
