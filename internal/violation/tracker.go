// Package violation implements the anti-cheat policy: per-participant
// counters plus a two-tier decision. Below the session's global threshold
// the category-specific action applies; at or above it, the escalation
// action applies unconditionally and the participant stays flagged.
package violation

import "livequiz-service/internal/domain"

// Decision is the enforcement outcome for one reported violation.
type Decision struct {
	Action    domain.ViolationAction `json:"action"`
	Total     int                    `json:"total"`
	Escalated bool                   `json:"escalated"`
}

// Record increments the counter for vtype on the participant and returns the
// action to take. Counters only ever go up; IsFlagged is never cleared once
// set. The caller must hold the session's exclusion while calling this.
func Record(p *domain.Participant, vtype domain.ViolationType, cfg domain.SessionConfig) Decision {
	switch vtype {
	case domain.ViolationFullscreenExit:
		p.FullscreenExits++
	case domain.ViolationTabSwitch:
		p.TabSwitches++
	case domain.ViolationCopyPaste:
		p.CopyPasteAttempts++
	}

	total := p.ViolationTotal()
	if cfg.MaxViolations > 0 && total >= cfg.MaxViolations {
		p.IsFlagged = true
		action := cfg.EscalationAction
		if action == "" {
			action = domain.ActionClose
		}
		return Decision{Action: action, Total: total, Escalated: true}
	}

	action := cfg.ViolationActions[vtype]
	if action == "" {
		action = domain.ActionWarn
	}
	return Decision{Action: action, Total: total}
}
