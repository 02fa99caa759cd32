package roster

import "testing"

func TestEmailRule_Canonical(t *testing.T) {
	t.Parallel()
	rule := EmailRule{AliasDomain: "inst.edu", CanonicalDomain: "canonical.edu"}

	tests := []struct {
		input    string
		expected string
	}{
		{"alice@inst.edu", "alice@canonical.edu"},
		{"  Alice@INST.EDU ", "alice@canonical.edu"},
		{"bob@canonical.edu", "bob@canonical.edu"},
		{"carol@other.org", "carol@other.org"},
		{"dave@sub.inst.edu", "dave@sub.inst.edu"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := rule.Canonical(tt.input); got != tt.expected {
			t.Errorf("Canonical(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestEmailRule_NoAlias(t *testing.T) {
	t.Parallel()
	rule := EmailRule{}
	if got := rule.Canonical(" Eve@Inst.edu"); got != "eve@inst.edu" {
		t.Errorf("expected lowercase passthrough, got %q", got)
	}
}

func TestTeam_HasStudent(t *testing.T) {
	t.Parallel()
	team := &Team{Members: []TeamMember{{StudentID: 1}, {StudentID: 3}}}
	if !team.HasStudent(3) {
		t.Error("expected student 3 to be linked")
	}
	if team.HasStudent(2) {
		t.Error("student 2 should not be linked")
	}
}

func TestStatusPredicates(t *testing.T) {
	t.Parallel()
	if !OrgStatusOwner.InOrg() || !OrgStatusInvited.InOrg() || OrgStatusPending.InOrg() {
		t.Error("unexpected InOrg results")
	}
	if !TeamStatusTeamMaintainer.OnTeam() || TeamStatusNotOrgMember.OnTeam() {
		t.Error("unexpected OnTeam results")
	}
}
