package vtimezone

import (
	"strings"
)

// Escape escapes a text value: backslash, semicolon, comma and newline.
func Escape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\', ';', ',':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Unescape reverses Escape. Unknown escapes keep the escaped character.
func Unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	escaped := false
	for _, r := range s {
		switch {
		case escaped && (r == 'n' || r == 'N'):
			b.WriteByte('\n')
			escaped = false
		case escaped:
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		default:
			b.WriteRune(r)
		}
	}
	if escaped {
		b.WriteByte('\\')
	}
	return b.String()
}

// unfold splits text into content lines, joining folded continuation lines.
func unfold(text string) []string {
	var lines []string
	for _, l := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		l = strings.TrimSuffix(l, "\r")
		if len(l) > 0 && (l[0] == ' ' || l[0] == '\t') && len(lines) > 0 {
			lines[len(lines)-1] += l[1:]
			continue
		}
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

// maxLine is the length after which content lines are folded.
const maxLine = 75

// fold breaks a content line into chunks of at most maxLine bytes, without
// splitting UTF-8 sequences.
func fold(line string) string {
	if len(line) <= maxLine {
		return line
	}
	var b strings.Builder
	limit := maxLine
	for len(line) > limit {
		cut := limit
		for cut > 0 && line[cut]&0xC0 == 0x80 {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		// Continuation lines start with a space.
		limit = maxLine - 1
	}
	b.WriteString(line)
	return b.String()
}

// property is one content line: NAME;PARAM=...:VALUE.
type property struct {
	Name   string
	Params string
	Value  string
}

// parseProperty splits a content line. Colons inside quoted parameter
// values do not end the parameters.
func parseProperty(line string) (property, bool) {
	quoted := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			quoted = !quoted
		case ':':
			if quoted {
				continue
			}
			head := line[:i]
			name, params, _ := strings.Cut(head, ";")
			return property{
				Name:   strings.ToUpper(strings.TrimSpace(name)),
				Params: params,
				Value:  line[i+1:],
			}, name != ""
		}
	}
	return property{}, false
}

// Split returns the VTIMEZONE blocks found in text, such as an iCalendar
// file, each from its BEGIN to its END line with CRLF line ends. Text
// without any BEGIN:VTIMEZONE line is returned as the only block.
func Split(text string) []string {
	var (
		blocks []string
		cur    []string
		in     bool
		seen   bool
	)
	for _, line := range unfold(text) {
		p, ok := parseProperty(line)
		marker := ok && strings.EqualFold(strings.TrimSpace(p.Value), "VTIMEZONE")
		switch {
		case marker && p.Name == "BEGIN":
			in, seen, cur = true, true, []string{line}
		case marker && p.Name == "END" && in:
			cur = append(cur, line)
			blocks = append(blocks, strings.Join(cur, "\r\n")+"\r\n")
			in, cur = false, nil
		case in:
			cur = append(cur, line)
		}
	}
	if !seen && strings.TrimSpace(text) != "" {
		return []string{text}
	}
	return blocks
}
