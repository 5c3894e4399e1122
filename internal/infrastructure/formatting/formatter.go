// Package formatting reflows generated answers into the display layout.
package formatting

import "strings"

const bullet = "•"

var sectionMarkers = []string{"📌", "📋", "📚", "💡"}

type Formatter struct{}

func New() *Formatter {
	return &Formatter{}
}

func (f *Formatter) Format(raw string) string {
	return Format(raw)
}

// Format starts a section at every marker line, splits "•a•b" lines into separate
// indented bullets and collapses blank-line runs.
func Format(raw string) string {
	var sections []string
	var current []string

	flush := func() {
		if len(current) > 0 {
			sections = append(sections, strings.Join(current, "\n"))
			current = nil
		}
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if isSectionStart(line) {
			flush()
			current = append(current, line)
			if !strings.HasSuffix(line, ":") {
				current = append(current, "")
			}
			continue
		}

		if strings.HasPrefix(line, bullet) {
			for _, point := range strings.Split(line, bullet)[1:] {
				if point = strings.TrimSpace(point); point != "" {
					current = append(current, "  "+bullet+" "+point, "")
				}
			}
			continue
		}

		current = append(current, line)
	}
	flush()

	return collapseBlankLines(strings.Join(sections, "\n\n"))
}

func isSectionStart(line string) bool {
	for _, marker := range sectionMarkers {
		if strings.HasPrefix(line, marker) {
			return true
		}
	}
	return false
}

func collapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	prevEmpty := false
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
			prevEmpty = false
			continue
		}
		if !prevEmpty {
			out = append(out, line)
			prevEmpty = true
		}
	}
	return strings.Join(out, "\n")
}
