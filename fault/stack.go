package fault

import (
	"regexp"
	"strings"
)

// DefaultMaxStackFrames caps how many frames a cleaned stack retains.
const DefaultMaxStackFrames = 50

// signatureFrames is how many leading frames contribute to the stack
// signature used for fingerprinting.
const signatureFrames = 3

// lineColRe matches :<line>:<column> position suffixes inside a frame.
var lineColRe = regexp.MustCompile(`:\d+:\d+`)

// stackSignature reduces a raw stack trace to a stable signature for
// fingerprinting: the first three frames after the header line, trimmed,
// with line/column positions stripped, joined with "|". An absent stack
// yields an empty signature.
func stackSignature(stack string) string {
	if stack == "" {
		return ""
	}

	lines := strings.Split(stack, "\n")
	if len(lines) < 2 {
		return ""
	}

	var frames []string
	for _, line := range lines[1:] {
		frame := strings.TrimSpace(line)
		if frame == "" {
			continue
		}
		frames = append(frames, lineColRe.ReplaceAllString(frame, ""))
		if len(frames) == signatureFrames {
			break
		}
	}

	return strings.Join(frames, "|")
}

// CleanStack trims a raw stack trace to the header line plus at most
// maxFrames frames, dropping blank lines. maxFrames <= 0 falls back to
// DefaultMaxStackFrames.
func CleanStack(stack string, maxFrames int) string {
	if stack == "" {
		return ""
	}
	if maxFrames <= 0 {
		maxFrames = DefaultMaxStackFrames
	}

	lines := strings.Split(stack, "\n")
	kept := make([]string, 0, maxFrames+1)
	kept = append(kept, strings.TrimRight(lines[0], " \t"))

	frames := 0
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
		frames++
		if frames == maxFrames {
			break
		}
	}

	return strings.Join(kept, "\n")
}
