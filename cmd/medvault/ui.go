package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

type formatter struct {
	color  *color.Color
	prefix string
	suffix string
}

func (f formatter) Sprint(a ...any) string {
	text := fmt.Sprint(a...)
	if noColor() {
		return f.prefix + text + f.suffix
	}
	return f.color.Sprint(text)
}

func (f formatter) Sprintf(format string, a ...any) string {
	return f.Sprint(fmt.Sprintf(format, a...))
}

func noColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return true
	}
	return color.NoColor
}

var (
	successText   = formatter{color.New(color.FgGreen), "", ""}
	errorText     = formatter{color.New(color.FgRed), "", ""}
	warningText   = formatter{color.New(color.FgYellow), "", ""}
	highlightText = formatter{color.New(color.FgCyan), "'", "'"}
	mutedText     = formatter{color.New(color.Faint), "(", ")"}
)

func printSuccess(w io.Writer, format string, a ...any) {
	fmt.Fprintln(w, successText.Sprint("✓"), fmt.Sprintf(format, a...))
}

func printWarning(w io.Writer, format string, a ...any) {
	fmt.Fprintln(w, warningText.Sprint("!"), fmt.Sprintf(format, a...))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func onOff(b bool) string {
	if b {
		return successText.Sprint("on")
	}
	return mutedText.Sprint("off")
}
