package syntax

import "strings"

// srcLine is one logical statement of source text. Line is 1-based and survives macro expansion.
type srcLine struct {
	line int
	text string
}

// lineConfig describes how a dialect splits text into statements.
type lineConfig struct {
	// comments start a comment running to the end of the line.
	comments []string
	// separator splits statements on the same line, zero if there is none.
	separator byte
	// hashLine treats a line whose first character is '#' as a comment, as GAS does for cpp line markers.
	hashLine bool
	// quoteEscapes is true if backslash escapes a quote inside strings.
	quoteEscapes bool
}

// split strips comments and splits src into logical statements. Block comments may span lines.
func (c *lineConfig) split(src string) []srcLine {
	var ret []srcLine
	inBlock := false
	for i, raw := range strings.Split(src, "\n") {
		line := i + 1
		var cur strings.Builder
		flush := func() {
			if s := strings.TrimSpace(cur.String()); s != "" {
				ret = append(ret, srcLine{line: line, text: s})
			}
			cur.Reset()
		}
		if c.hashLine && !inBlock && strings.HasPrefix(strings.TrimLeft(raw, " \t"), "#") {
			continue
		}

		var quote byte
	scan:
		for j := 0; j < len(raw); j++ {
			ch := raw[j]
			if inBlock {
				if ch == '*' && j+1 < len(raw) && raw[j+1] == '/' {
					inBlock = false
					j++
					cur.WriteByte(' ')
				}
				continue
			}
			if quote != 0 {
				cur.WriteByte(ch)
				if ch == '\\' && c.quoteEscapes && j+1 < len(raw) {
					j++
					cur.WriteByte(raw[j])
				} else if ch == quote {
					quote = 0
				}
				continue
			}
			switch {
			case ch == '"' || ch == '`':
				quote = ch
			case ch == '\'':
				// GAS allows an unterminated 'c character literal, so only treat it as a quote when closed.
				if k := strings.IndexByte(raw[j+1:], '\''); k >= 0 && (k <= 2 || !c.quoteEscapes) {
					quote = ch
				}
			case ch == '/' && j+1 < len(raw) && raw[j+1] == '*':
				inBlock = true
				j++
				continue
			case c.separator != 0 && ch == c.separator:
				flush()
				continue
			}
			for _, cm := range c.comments {
				if strings.HasPrefix(raw[j:], cm) {
					break scan
				}
			}
			cur.WriteByte(ch)
		}
		flush()
	}
	return ret
}
