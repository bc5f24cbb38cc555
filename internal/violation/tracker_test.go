package violation

import (
	"testing"

	"livequiz-service/internal/domain"
)

func testConfig() domain.SessionConfig {
	cfg := domain.DefaultSessionConfig()
	cfg.MaxViolations = 3
	cfg.ViolationActions = map[domain.ViolationType]domain.ViolationAction{
		domain.ViolationTabSwitch:      domain.ActionWarn,
		domain.ViolationFullscreenExit: domain.ActionPause,
		domain.ViolationCopyPaste:      domain.ActionShuffle,
	}
	cfg.EscalationAction = domain.ActionClose
	return cfg
}

func TestCategoryActionBelowThreshold(t *testing.T) {
	cfg := testConfig()
	p := &domain.Participant{ID: "p1"}

	d := Record(p, domain.ViolationFullscreenExit, cfg)
	if d.Action != domain.ActionPause || d.Escalated {
		t.Fatalf("expected pause without escalation, got %+v", d)
	}
	d = Record(p, domain.ViolationCopyPaste, cfg)
	if d.Action != domain.ActionShuffle || d.Escalated {
		t.Fatalf("expected shuffle without escalation, got %+v", d)
	}
	if p.IsFlagged {
		t.Fatalf("participant must not be flagged below the threshold")
	}
}

func TestEscalationAtThreshold(t *testing.T) {
	cfg := testConfig()
	p := &domain.Participant{ID: "p1"}

	d := Record(p, domain.ViolationTabSwitch, cfg)
	if d.Action != domain.ActionWarn || p.IsFlagged {
		t.Fatalf("first tab switch: expected warn, got %+v flagged=%v", d, p.IsFlagged)
	}
	d = Record(p, domain.ViolationTabSwitch, cfg)
	if d.Action != domain.ActionWarn || p.IsFlagged {
		t.Fatalf("second tab switch: expected warn, got %+v flagged=%v", d, p.IsFlagged)
	}
	d = Record(p, domain.ViolationTabSwitch, cfg)
	if d.Action != domain.ActionClose || !d.Escalated {
		t.Fatalf("third tab switch: expected escalation to close, got %+v", d)
	}
	if !p.IsFlagged {
		t.Fatalf("escalation must flag the participant")
	}
	if d.Total != 3 {
		t.Fatalf("expected total 3, got %d", d.Total)
	}
}

func TestEscalationCountsAcrossCategories(t *testing.T) {
	cfg := testConfig()
	p := &domain.Participant{ID: "p1"}

	Record(p, domain.ViolationFullscreenExit, cfg)
	Record(p, domain.ViolationTabSwitch, cfg)
	d := Record(p, domain.ViolationCopyPaste, cfg)
	if !d.Escalated || d.Action != domain.ActionClose {
		t.Fatalf("mixed categories must still count toward the threshold, got %+v", d)
	}
}

func TestFlagNeverReverts(t *testing.T) {
	cfg := testConfig()
	p := &domain.Participant{ID: "p1"}

	for i := 0; i < 5; i++ {
		Record(p, domain.ViolationTabSwitch, cfg)
	}
	if !p.IsFlagged {
		t.Fatalf("expected flagged participant")
	}
	d := Record(p, domain.ViolationTabSwitch, cfg)
	if !p.IsFlagged || !d.Escalated {
		t.Fatalf("flag must persist once the threshold is crossed")
	}
	if p.TabSwitches != 6 {
		t.Fatalf("counters are monotonic, expected 6 got %d", p.TabSwitches)
	}
}

func TestZeroThresholdNeverEscalates(t *testing.T) {
	cfg := testConfig()
	cfg.MaxViolations = 0
	p := &domain.Participant{ID: "p1"}

	for i := 0; i < 10; i++ {
		if d := Record(p, domain.ViolationTabSwitch, cfg); d.Escalated {
			t.Fatalf("threshold of 0 disables escalation, got %+v", d)
		}
	}
}
