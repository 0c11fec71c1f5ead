package services

import (
	"testing"
)

func TestGetWorkflowUnknownName(t *testing.T) {
	_, err := GetWorkflow("does_not_exist")
	if err == nil {
		t.Fatal("expected error for unknown workflow")
	}
	if !IsConfigurationError(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestPhaseUnknownName(t *testing.T) {
	wf, err := GetWorkflow(WorkflowSingleStage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := wf.Phase("nonexistent_phase"); !IsConfigurationError(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestValidateWorkflows(t *testing.T) {
	if err := ValidateWorkflows(); err != nil {
		t.Fatalf("registered workflows must validate: %v", err)
	}
}

func TestValidateWorkflowRejectsBadDefinitions(t *testing.T) {
	base := func() *Workflow {
		wf := singleStageWorkflow()
		wf.phases = make(map[string]*Phase)
		for _, stage := range wf.Stages {
			for _, phase := range stage.Phases {
				wf.phases[phase.Name] = phase
			}
		}
		return wf
	}

	t.Run("unknown target", func(t *testing.T) {
		wf := base()
		wf.Stages[0].Phases[0].Actions[0].Target = "nowhere"
		if err := validateWorkflow(wf); !IsConfigurationError(err) {
			t.Fatalf("expected configuration error, got %v", err)
		}
	})

	t.Run("backward move within stage", func(t *testing.T) {
		wf := base()
		// internal_review pointing back at received
		wf.Stages[0].Phases[1].Actions[0].Target = "received"
		if err := validateWorkflow(wf); !IsConfigurationError(err) {
			t.Fatalf("expected configuration error, got %v", err)
		}
	})

	t.Run("empty permissions", func(t *testing.T) {
		wf := base()
		wf.Stages[0].Phases[0].Actions[0].Permissions = nil
		if err := validateWorkflow(wf); !IsConfigurationError(err) {
			t.Fatalf("expected configuration error, got %v", err)
		}
	})

	t.Run("non-terminal final phase", func(t *testing.T) {
		wf := base()
		last := wf.Stages[0].Phases[len(wf.Stages[0].Phases)-1]
		last.Actions = []Action{{Name: "loop", Display: "Loop", Target: last.Name, Permissions: []Capability{CapStaff}}}
		if err := validateWorkflow(wf); !IsConfigurationError(err) {
			t.Fatalf("expected configuration error, got %v", err)
		}
	})
}

func TestActionsForFiltersByCapability(t *testing.T) {
	wf, err := GetWorkflow(WorkflowTwoStage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	invited, err := wf.Phase("invited_to_proposal")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	applicant := CapabilitySet{CapApplicant: true}
	actions := wf.ActionsFor(invited, applicant)
	if len(actions) != 1 || actions[0].Name != "start_proposal" {
		t.Fatalf("expected applicant to see start_proposal only, got %v", actions)
	}

	received, err := wf.Phase("received")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actions := wf.ActionsFor(received, applicant); len(actions) != 0 {
		t.Fatalf("applicant must not see staff actions, got %v", actions)
	}

	staff := CapabilitySet{CapStaff: true}
	if actions := wf.ActionsFor(received, staff); len(actions) != 3 {
		t.Fatalf("expected 3 staff actions on received, got %v", actions)
	}
}

func TestInitialAndTerminalPhases(t *testing.T) {
	wf, err := GetWorkflow(WorkflowSingleStage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := wf.Initial().Name; got != "received" {
		t.Fatalf("expected initial phase received, got %q", got)
	}

	for _, name := range []string{"accepted", "rejected"} {
		phase, err := wf.Phase(name)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !phase.Terminal() {
			t.Fatalf("phase %q should be terminal", name)
		}
	}
}

func TestPhaseAfterWalksDefinitionOrder(t *testing.T) {
	wf, err := GetWorkflow(WorkflowTwoStage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last, err := wf.Phase("concept_rejected")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	next := wf.PhaseAfter(last)
	if next == nil || next.Name != "proposal_draft" {
		t.Fatalf("expected proposal_draft after concept_rejected, got %v", next)
	}

	final, err := wf.Phase("rejected")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wf.PhaseAfter(final) != nil {
		t.Fatal("expected no phase after the last one")
	}
}

func TestCapabilitiesOf(t *testing.T) {
	admin := userWithRole(1, "admin")
	caps := CapabilitiesOf(admin)
	if !caps.Has(CapAdmin) || !caps.Has(CapStaff) {
		t.Fatalf("admin should hold admin and staff, got %v", caps)
	}
	if caps.Has(CapReviewer) {
		t.Fatalf("admin should not hold reviewer implicitly, got %v", caps)
	}

	if caps := CapabilitiesOf(nil); len(caps) != 0 {
		t.Fatalf("nil user should hold nothing, got %v", caps)
	}
}

func TestPrimaryViewerRole(t *testing.T) {
	if _, filtered := PrimaryViewerRole(CapabilitySet{CapStaff: true}); filtered {
		t.Fatal("staff must be unfiltered")
	}
	if lane, _ := PrimaryViewerRole(CapabilitySet{CapReviewer: true}); lane != CapReviewer {
		t.Fatalf("expected reviewer lane, got %v", lane)
	}
	if lane, _ := PrimaryViewerRole(CapabilitySet{}); lane != CapApplicant {
		t.Fatalf("expected applicant fallback, got %v", lane)
	}
}
