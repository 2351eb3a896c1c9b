// Package launch spawns the external command a scan-button interrupt
// triggers, exposing the scanner's selected configuration to it through
// environment variables.
package launch

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/johnmave126/scanner-button/bjnp/poll"
)

// Run starts name with args, appending SCANNER_* environment variables
// derived from interrupt to the child's environment. The child is started
// but not waited on; its exit status never propagates back to the caller.
func Run(name string, args []string, interrupt poll.Interrupt) error {
	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(), env(interrupt)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch: failed to start %q: %w", name, err)
	}
	slog.Info("launched external command", "command", name, "pid", cmd.Process.Pid)
	return nil
}

func env(i poll.Interrupt) []string {
	return []string{
		"SCANNER_COLOR_MODE=" + colorModeValue(i.ColorMode),
		"SCANNER_PAGE=" + sizeValue(i.Size),
		"SCANNER_FORMAT=" + formatValue(i.Format),
		"SCANNER_DPI=" + dpiValue(i.DPI),
		"SCANNER_SOURCE=" + sourceValue(i.Source),
		"SCANNER_ADF_TYPE=" + feederTypeValue(i.FeederType),
		"SCANNER_ADF_ORIENT=" + feederOrientationValue(i.FeederOrientation),
	}
}

func colorModeValue(m poll.ColorMode) string {
	switch m {
	case poll.Color:
		return "COLOR"
	case poll.Mono:
		return "MONO"
	default:
		return ""
	}
}

func sizeValue(s poll.Size) string {
	switch s {
	case poll.A4:
		return "A4"
	case poll.Letter:
		return "LETTER"
	case poll.Size10x15:
		return "10x15"
	case poll.Size13x18:
		return "13x18"
	case poll.Auto:
		return "AUTO"
	default:
		return ""
	}
}

func formatValue(f poll.Format) string {
	switch f {
	case poll.Jpeg:
		return "JPEG"
	case poll.Tiff:
		return "TIFF"
	case poll.Pdf:
		return "PDF"
	case poll.KompaktPdf:
		return "KOMPAKT_PDF"
	default:
		return ""
	}
}

func dpiValue(d poll.DPI) string {
	switch d {
	case poll.DPI75:
		return "75"
	case poll.DPI150:
		return "150"
	case poll.DPI300:
		return "300"
	case poll.DPI600:
		return "600"
	default:
		return ""
	}
}

func sourceValue(s poll.Source) string {
	switch s {
	case poll.Flatbed:
		return "FLATBED"
	case poll.AutoDocumentFeeder:
		return "FEEDER"
	default:
		return ""
	}
}

func feederTypeValue(t *poll.FeederType) string {
	if t == nil {
		return ""
	}
	switch *t {
	case poll.Simplex:
		return "SIMPLEX"
	case poll.Duplex:
		return "DUPLEX"
	default:
		return ""
	}
}

func feederOrientationValue(o *poll.FeederOrientation) string {
	if o == nil {
		return ""
	}
	switch *o {
	case poll.Portrait:
		return "PORTRAIT"
	case poll.Landscape:
		return "LANDSCAPE"
	default:
		return ""
	}
}
