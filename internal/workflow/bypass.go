package workflow

import (
	"context"
	"fmt"
	"os/user"
	"strings"
	"time"

	"github.com/reliable-agents-ai/triads-sub002/internal/gitutil"
	"github.com/reliable-agents-ai/triads-sub002/internal/safeio"
)

const minJustificationLen = 10

// Characters that would let a justification smuggle shell syntax into
// anything that later echoes the audit log.
const dangerousChars = "$`;|&><(){}"

var suspiciousPatterns = []string{"rm -rf", "sudo ", "$("}

// ValidateJustification accepts only a plain-prose reason for an
// emergency bypass.
func ValidateJustification(justification string) error {
	j := strings.TrimSpace(justification)
	if len(j) < minJustificationLen {
		return fmt.Errorf("justification too short: need at least %d characters", minJustificationLen)
	}
	if i := strings.IndexAny(j, dangerousChars); i >= 0 {
		return fmt.Errorf("justification contains forbidden character %q", j[i])
	}
	lower := strings.ToLower(j)
	for _, p := range suspiciousPatterns {
		if strings.Contains(lower, p) {
			return fmt.Errorf("justification contains suspicious pattern %q", p)
		}
	}
	return nil
}

// AuditEntry is one accepted bypass, append-only.
type AuditEntry struct {
	Timestamp     time.Time      `json:"timestamp"`
	User          string         `json:"user"`
	Justification string         `json:"justification"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// AuditLog appends bypass records to workflow_audit.log, one JSON line
// each.
type AuditLog struct {
	Path string
	Dir  string // repo dir for identity lookup

	now func() time.Time
}

func NewAuditLog(path, repoDir string) *AuditLog {
	return &AuditLog{Path: path, Dir: repoDir, now: time.Now}
}

func (a *AuditLog) Append(ctx context.Context, justification string, metadata map[string]any) error {
	entry := AuditEntry{
		Timestamp:     a.now().UTC(),
		User:          a.userIdentity(ctx),
		Justification: justification,
		Metadata:      metadata,
	}
	line, err := safeio.EncodeJSON(entry, 0)
	if err != nil {
		return err
	}
	return safeio.AppendLine(a.Path, string(line))
}

// userIdentity prefers the VCS identity, falls back to the OS user, then
// "unknown". Audit rows must always name somebody.
func (a *AuditLog) userIdentity(ctx context.Context) string {
	name := gitutil.UserName(ctx, a.Dir)
	email := gitutil.UserEmail(ctx, a.Dir)
	switch {
	case name != "" && email != "":
		return name + " <" + email + ">"
	case name != "":
		return name
	case email != "":
		return email
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}
