package parser

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// candidates are tried in order; a nil charmap means plain UTF-8.
var candidates = []struct {
	name    string
	charmap *charmap.Charmap
}{
	{"utf-8", nil},
	{"latin-1", charmap.ISO8859_1},
	{"cp1252", charmap.Windows1252},
}

// decode returns data as UTF-8 text along with the encoding that worked.
func decode(data []byte) (string, string, error) {
	for _, c := range candidates {
		if c.charmap == nil {
			trimmed := bytes.TrimPrefix(data, utf8BOM)
			if utf8.Valid(trimmed) {
				return string(trimmed), c.name, nil
			}
			continue
		}
		out, err := c.charmap.NewDecoder().Bytes(data)
		if err != nil {
			continue
		}
		return string(out), c.name, nil
	}
	return "", "", fmt.Errorf("no supported encoding could decode the file")
}
