package alert

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/dwsmith1983/tfgate/pkg/types"
)

// ConsoleSink writes alerts to the terminal with color-coded severity.
type ConsoleSink struct{}

// NewConsoleSink creates a new console alert sink.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{}
}

// Name returns the sink identifier.
func (s *ConsoleSink) Name() string { return "console" }

// Send writes one alert line: severity, environment, run, message.
func (s *ConsoleSink) Send(_ context.Context, alert types.Alert) error {
	var b strings.Builder
	switch alert.Level {
	case types.AlertLevelError:
		b.WriteString(color.RedString("[ERROR]"))
	case types.AlertLevelWarning:
		b.WriteString(color.YellowString("[WARN]"))
	default:
		b.WriteString(color.CyanString("[INFO]"))
	}
	if alert.Environment != "" {
		fmt.Fprintf(&b, " [%s]", alert.Environment)
	}
	if alert.RunID != "" {
		fmt.Fprintf(&b, " run=%s", alert.RunID)
	}
	b.WriteString(" ")
	b.WriteString(alert.Message)
	fmt.Println(b.String())
	return nil
}
