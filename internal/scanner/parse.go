package scanner

import (
	"fmt"
	"strings"
)

// FoundMarker is the token clamscan appends to a line reporting a match.
const FoundMarker = "FOUND"

// unknownThreat labels a match whose name could not be extracted.
const unknownThreat = "Unknown"

// ParseOutput classifies a finished engine run from its exit code and
// combined output. The returned verdict has no Version set.
func ParseOutput(exitCode int, output string) Verdict {
	if exitCode == 0 {
		return Verdict{Status: StatusClean, Log: output}
	}

	if name, ok := threatName(output); ok {
		return Verdict{Status: StatusInfected, VirusName: name, Log: output}
	}

	detail := fmt.Sprintf("engine exited with status %d", exitCode)
	if trimmed := strings.TrimSpace(output); trimmed != "" {
		detail = trimmed + "\n" + detail
	}
	return Verdict{Status: StatusError, Log: detail}
}

// threatName extracts the label sitting between the last path separator or
// colon and the FOUND marker, e.g. "/tmp/a.txt: Eicar-Test-Signature FOUND".
func threatName(output string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasSuffix(line, FoundMarker) {
			continue
		}
		body := strings.TrimSpace(strings.TrimSuffix(line, FoundMarker))
		if i := strings.LastIndexAny(body, ":/\\"); i >= 0 {
			body = body[i+1:]
		}
		name := strings.TrimSpace(body)
		if name == "" {
			name = unknownThreat
		}
		return name, true
	}
	return "", false
}
