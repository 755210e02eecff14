package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Actions recorded for operator requests.
const (
	ActionGenerateHourly = "report.generate.hourly"
	ActionGenerateShift  = "report.generate.shift"
	ActionGenerateDaily  = "report.generate.daily"
	ActionBackfill       = "report.backfill"
	ActionLiveStart      = "live.start"
	ActionLiveStop       = "live.stop"
)

// Entry is one recorded operator action.
type Entry struct {
	ID            string
	Action        string
	SourceID      string
	BusinessDate  string
	Outcome       string
	Metadata      json.RawMessage
	PayloadDigest string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
