package agentloop

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/martinemde/agentbuilder/directive"
)

// actionSignature computes a deterministic signature for an action
// (kind + hash of its operands). Offsets are ignored.
func actionSignature(a directive.Action) string {
	h := sha256.Sum256([]byte(a.Key + "\x00" + a.Value + "\x00" + a.Name + "\x00" + a.Language + "\x00" + a.Code))
	return fmt.Sprintf("%s:%x", a.Kind, h[:8])
}

// batchSignature identifies one round's full action batch.
func batchSignature(actions []directive.Action) string {
	sigs := make([]string, len(actions))
	for i, a := range actions {
		sigs[i] = actionSignature(a)
	}
	return strings.Join(sigs, "|")
}

// DetectLoop reports whether the last window batch signatures are one
// pattern of length 1, 2 or 3 repeated at least twice.
func DetectLoop(signatures []string, window int) bool {
	if window < 2 || len(signatures) < window {
		return false
	}
	tail := signatures[len(signatures)-window:]

	for period := 1; period <= 3 && period < window; period++ {
		if window%period != 0 {
			continue
		}
		if repeats(tail, period) {
			return true
		}
	}
	return false
}

func repeats(sigs []string, period int) bool {
	for i := period; i < len(sigs); i++ {
		if sigs[i] != sigs[i%period] {
			return false
		}
	}
	return true
}
