package secrets

import (
	"fmt"
	"sort"
	"strings"
	"time"

	gitleaksconfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
)

// Scrubber redacts secrets from text.
type Scrubber interface {
	Scrub(content string) *Result
	IsEnabled() bool
}

// Result is the outcome of one Scrub call.
type Result struct {
	Scrubbed string
	Findings []Finding
	Duration time.Duration
}

// HasFindings reports whether anything was redacted.
func (r *Result) HasFindings() bool { return len(r.Findings) > 0 }

// RuleIDs returns the distinct rules that matched, sorted.
func (r *Result) RuleIDs() []string {
	seen := make(map[string]struct{}, len(r.Findings))
	ids := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		if _, ok := seen[f.RuleID]; ok {
			continue
		}
		seen[f.RuleID] = struct{}{}
		ids = append(ids, f.RuleID)
	}
	sort.Strings(ids)
	return ids
}

// Finding describes a redacted secret. The secret itself is not kept.
type Finding struct {
	RuleID      string
	Description string
	Line        int
}

// Marker returns the replacement text for a rule.
func Marker(ruleID string) string {
	return fmt.Sprintf("[REDACTED:%s]", ruleID)
}

// GitleaksScrubber detects secrets with the gitleaks default ruleset.
type GitleaksScrubber struct {
	cfg       gitleaksconfig.Config
	allowlist *Allowlist
}

var _ Scrubber = (*GitleaksScrubber)(nil)

// New loads the gitleaks default config once. Each Scrub call builds a
// fresh detector from it, since detectors accumulate findings.
func New(allowlist *Allowlist) (*GitleaksScrubber, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks config: %w", err)
	}
	return &GitleaksScrubber{cfg: d.Config, allowlist: allowlist}, nil
}

// IsEnabled returns true.
func (s *GitleaksScrubber) IsEnabled() bool { return true }

// Scrub replaces every detected secret with Marker(ruleID).
func (s *GitleaksScrubber) Scrub(content string) *Result {
	start := time.Now()
	res := &Result{Scrubbed: content}
	if strings.TrimSpace(content) == "" {
		return res
	}

	found := detect.NewDetector(s.cfg).DetectString(content)

	// Longest secrets first so a secret containing another is replaced whole.
	sort.SliceStable(found, func(i, j int) bool { return len(found[i].Secret) > len(found[j].Secret) })

	scrubbed := content
	for _, f := range found {
		if f.Secret == "" || s.allowlist.Allows(f.Secret) {
			continue
		}
		if !strings.Contains(scrubbed, f.Secret) {
			continue
		}
		scrubbed = strings.ReplaceAll(scrubbed, f.Secret, Marker(f.RuleID))
		res.Findings = append(res.Findings, Finding{
			RuleID:      f.RuleID,
			Description: f.Description,
			Line:        f.StartLine,
		})
	}
	res.Scrubbed = scrubbed
	res.Duration = time.Since(start)
	return res
}

// NoopScrubber passes content through unchanged.
type NoopScrubber struct{}

// Scrub returns content unchanged.
func (NoopScrubber) Scrub(content string) *Result { return &Result{Scrubbed: content} }

// IsEnabled returns false.
func (NoopScrubber) IsEnabled() bool { return false }

// FromConfig returns a gitleaks scrubber when enabled, else a no-op.
func FromConfig(enabled bool, allowlistPath string) (Scrubber, error) {
	if !enabled {
		return NoopScrubber{}, nil
	}
	allow, err := LoadAllowlist(allowlistPath)
	if err != nil {
		return nil, err
	}
	return New(allow)
}
