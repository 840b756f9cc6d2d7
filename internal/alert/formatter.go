package alert

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Alerts are advisory only. The formatter refuses any text that reads
// as a trading instruction.
var tradingVerbs = regexp.MustCompile(`(?i)\b(buy|sell|trade)\b`)

// Format renders the fixed plain-text layout. It returns an error
// rather than emit a trading verb.
func Format(t Trigger, at time.Time) (string, error) {
	if tradingVerbs.MatchString(t.Details) {
		return "", fmt.Errorf("alert details contain a trading verb: %q", t.Details)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[ALERT] %s\n", t.Kind)
	asset := t.Asset
	if asset == "" {
		asset = "ALL"
	}
	fmt.Fprintf(&b, "Asset: %s\n", asset)
	fmt.Fprintf(&b, "Time: %s\n", at.UTC().Format("2006-01-02T15:04:05Z"))
	fmt.Fprintf(&b, "Details: %s", t.Details)
	return b.String(), nil
}
