package extract

import (
	"embed"
	"strings"
)

//go:embed prompts/lines.md prompts/foreign_names.md
var promptFS embed.FS

// Mode selects which row shape, system instructions and conversation window
// the extractor uses. The window asymmetry is deliberate: name extraction
// carries a long cross-page glossary context, dense line extraction cannot
// afford one.
type Mode struct {
	Name         string
	Columns      []string
	Instructions string
	MemoryLimit  int
}

const (
	defaultLinesMemory = 15
	defaultNamesMemory = 100
)

// Lines extracts dialogue lines: character, text, tone, place, background
// sound.
func Lines() Mode {
	return Mode{
		Name: "LINES",
		Columns: []string{
			"الشخصية",
			"النص",
			"النبرة",
			"المكان",
			"الخلفية الصوتية",
		},
		Instructions: prompt("prompts/lines.md"),
		MemoryLimit:  defaultLinesMemory,
	}
}

// ForeignNames extracts a foreign-name glossary: Arabic name, foreign name,
// up to three reference links.
func ForeignNames() Mode {
	return Mode{
		Name: "NAMES",
		Columns: []string{
			"الإسم بالعربي",
			"الإسم باللغة الأجنبية",
			"الرابط الأول",
			"الرابط الثاني",
			"الرابط الثالث",
		},
		Instructions: prompt("prompts/foreign_names.md"),
		MemoryLimit:  defaultNamesMemory,
	}
}

// ModeFor maps a request's mode parameter to a Mode. Unknown or empty values
// default to name extraction.
func ModeFor(name string) Mode {
	if strings.EqualFold(strings.TrimSpace(name), "LINES") {
		return Lines()
	}
	return ForeignNames()
}

func prompt(path string) string {
	b, err := promptFS.ReadFile(path)
	if err != nil {
		panic("missing embedded prompt: " + path)
	}
	return string(b)
}
