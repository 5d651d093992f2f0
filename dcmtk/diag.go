package dcmtk

import (
	"fmt"
	"regexp"
	"strings"

	"pacsgo/pacs"
)

// diagPattern matches DCMTK error and failure diagnostics of the form
// "E: 0006:0317 Peer aborted Association". The numeric code identifies
// the condition independent of the message text.
var diagPattern = regexp.MustCompile(`[EF]: ([\da-f]{4}:[\da-f]{4}) [^#\r\n]+`)

// codeNoDataAvailable is DCMTK's DIMSEC_NODATAAVAILABLE condition. The
// tools report it both for an empty result set and for a peer that was
// still matching when the DIMSE timeout fired, so it maps to the
// ambiguous-timeout error.
const codeNoDataAvailable = "0006:0207"

// scanDiagnostics inspects the last lines of a tool's output for DCMTK
// condition codes. The tools print their verdict at the end of the run,
// newest last, so only the trailer is scanned, in reverse.
func scanDiagnostics(output string) error {
	lines := tailLines(output, 3)
	for i := len(lines) - 1; i >= 0; i-- {
		m := diagPattern.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		if m[1] == codeNoDataAvailable {
			return fmt.Errorf("%w: %s", pacs.ErrAmbiguousTimeout, strings.TrimSpace(m[0]))
		}
		return fmt.Errorf("dcmtk: %s", strings.TrimSpace(m[0]))
	}
	return nil
}

// classifyOutput maps a failed tool run onto an association outcome
// class when the output names one, falling back to the diagnostic scan.
func classifyOutput(output string) error {
	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "association rejected"):
		return fmt.Errorf("%w: %s", pacs.ErrAssociationRejected, lastNonEmptyLine(output))
	case strings.Contains(lower, "peer aborted association"),
		strings.Contains(lower, "association aborted"):
		return fmt.Errorf("%w: %s", pacs.ErrAssociationAborted, lastNonEmptyLine(output))
	case strings.Contains(lower, "failed to establish association"),
		strings.Contains(lower, "association request failed"):
		return fmt.Errorf("%w: %s", pacs.ErrAssociationFailed, lastNonEmptyLine(output))
	}
	return scanDiagnostics(output)
}

func tailLines(output string, n int) []string {
	lines := strings.Split(strings.TrimRight(output, "\r\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

func lastNonEmptyLine(output string) string {
	lines := strings.Split(strings.TrimRight(output, "\r\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" {
			return s
		}
	}
	return ""
}
