package schema

import "strings"

// strptime directives to Go reference-layout fragments. Descriptors keep
// the strptime spelling the lab already uses in its templates.
var strptimeTable = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'H': "15",
	'M': "04",
	'S': "05",
	'b': "Jan",
	'B': "January",
	'j': "002",
	'f': "000000",
	'p': "PM",
	'z': "-0700",
	'%': "%",
}

func strptimeToGoLayout(format string) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i+1 >= len(format) {
			b.WriteByte(format[i])
			continue
		}
		i++
		if frag, ok := strptimeTable[format[i]]; ok {
			b.WriteString(frag)
		} else {
			// Unknown directive passes through literally.
			b.WriteByte('%')
			b.WriteByte(format[i])
		}
	}
	return b.String()
}
