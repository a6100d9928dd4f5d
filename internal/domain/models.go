package domain

import (
	"regexp"
	"strings"
	"time"
)

// Placeholder is the canonical "missing information" leaf value.
const Placeholder = "Not Available"

// DefaultJunk is the vocabulary of values that carry no information. It is
// shared by the sanitizer and the repair engine and can be replaced with
// sanitize.junk in the configuration.
var DefaultJunk = []string{
	"n/a", "na", "n.a.", "null", "nil", "undefined", "test", "sample",
	"?", "??", "???", "-", "--", "...", "not applicable", "not available",
}

// DefaultAccountName is used for output naming when the plan has no usable name.
const DefaultAccountName = "Account_Plan_Output"

// OutputSuffix is appended to the account name to form the output filename.
const OutputSuffix = "_Account_Plan_v1_locked.docx"

// MinInputLength is the default minimum number of characters of extracted
// text required before the model is called.
const MinInputLength = 10

// RequiredSections lists the top-level sections every account plan carries.
var RequiredSections = []string{
	"account_overview",
	"omega_history",
	"customer_health",
	"fy26_path_to_plan_summary",
	"customer_business_objectives",
	"account_landscape",
	"account_relationships",
	"account_strategy",
	"opportunity_win_plans",
}

// Source describes where the raw document text came from.
type Source struct {
	Path     string // empty for pasted text
	Filename string
	Text     string
}

// EventType represents the type of stream event
type EventType string

const (
	EventStart         EventType = "start"
	EventTextExtracted EventType = "text_extracted"
	EventLLMComplete   EventType = "llm_complete"
	EventRepaired      EventType = "repaired"
	EventRendered      EventType = "rendered"
	EventError         EventType = "error"
	EventComplete      EventType = "complete"
)

// StreamEvent represents an event emitted during processing
type StreamEvent struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// PlanResult is the outcome of running one document through the pipeline.
type PlanResult struct {
	RequestID   string         `json:"request_id"`
	AccountName string         `json:"account_name"`
	Plan        map[string]any `json:"plan"`
	Filename    string         `json:"filename"`
	CacheHit    bool           `json:"cache_hit"`
	Duration    time.Duration  `json:"duration"`
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// IsPlaceholder reports whether s is blank or starts with Placeholder or
// with one of the configured placeholders.
func IsPlaceholder(s string, placeholders ...string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, Placeholder) {
		return true
	}
	for _, p := range placeholders {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// OutputFilename derives the rendered document's filename from an account
// name. Names that are still a placeholder use DefaultAccountName.
func OutputFilename(accountName string, placeholders ...string) string {
	name := strings.TrimSpace(accountName)
	if IsPlaceholder(name, placeholders...) {
		name = DefaultAccountName
	}
	name = unsafeNameChars.ReplaceAllString(strings.ReplaceAll(name, " ", "_"), "")
	name = strings.Trim(name, "_")
	if name == "" {
		name = DefaultAccountName
	}
	return name + OutputSuffix
}

// AccountName reads account_overview.account_name from a plan tree.
func AccountName(plan map[string]any) string {
	overview, ok := plan["account_overview"].(map[string]any)
	if !ok {
		return ""
	}
	name, _ := overview["account_name"].(string)
	return strings.TrimSpace(name)
}
