package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// FingerprintEvent derives the unique content fingerprint for a raw
// event from source, text and event time truncated to the second. Two
// deliveries of the same content always collide here.
func FingerprintEvent(source Source, text string, eventTime time.Time) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%d", source, text, eventTime.Truncate(time.Second).Unix())
	return hex.EncodeToString(h.Sum(nil))
}

var (
	digitRe      = regexp.MustCompile(`\d+`)
	punctRe      = regexp.MustCompile(`[[:punct:]]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// NormalizedFingerprint hashes a message after lowercasing, stripping
// digits and punctuation and collapsing whitespace. Used by the
// Telegram manipulation detector to match near-identical copy across
// chats.
func NormalizedFingerprint(text string) string {
	s := strings.ToLower(text)
	s = digitRe.ReplaceAllString(s, "")
	s = punctRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
