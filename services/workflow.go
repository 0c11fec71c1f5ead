package services

import "fmt"

// WorkflowVariant distinguishes standard workflows from sealed ones, where
// submissions stay hidden from staff action until an admin unseals the round.
type WorkflowVariant string

const (
	VariantStandard WorkflowVariant = "standard"
	VariantSealed   WorkflowVariant = "sealed"
)

// Action is one outgoing transition offered by a phase. Target names the
// destination phase; an action targeting its own phase is a self-transition
// (e.g. requesting more information without moving the submission forward).
type Action struct {
	Name        string       `json:"name"`
	Display     string       `json:"display"`
	Target      string       `json:"target"`
	Permissions []Capability `json:"permissions"`
}

// Permitted reports whether the capability set satisfies the action's
// permission predicate (any one of the listed capabilities is enough).
func (a Action) Permitted(caps CapabilitySet) bool {
	return caps.HasAny(a.Permissions...)
}

// Phase is the finest-grained state of a submission. RequiredReviews is the
// entry guard: a transition into this phase needs at least that many
// finalized reviews at the submission's current stage.
type Phase struct {
	Name            string   `json:"name"`
	Display         string   `json:"display"`
	Stage           string   `json:"stage"`
	StageIndex      int      `json:"stage_index"`
	Ordinal         int      `json:"ordinal"`
	RequiredReviews int      `json:"required_reviews,omitempty"`
	Actions         []Action `json:"actions"`
}

// Action looks up an outgoing action by name.
func (p *Phase) Action(name string) (Action, bool) {
	for _, action := range p.Actions {
		if action.Name == name {
			return action, true
		}
	}
	return Action{}, false
}

// Terminal reports whether the phase has no outgoing actions.
func (p *Phase) Terminal() bool {
	return len(p.Actions) == 0
}

// Stage is a top-level step of the application lifecycle containing ordered
// phases.
type Stage struct {
	Name    string   `json:"name"`
	Display string   `json:"display"`
	Ordinal int      `json:"ordinal"`
	Phases  []*Phase `json:"phases"`
}

// Workflow is an immutable, validated description of the stages and phases a
// submission moves through. Definitions are built once at startup and shared
// read-only by every submission using them.
type Workflow struct {
	Name    string          `json:"name"`
	Display string          `json:"display"`
	Variant WorkflowVariant `json:"variant"`
	Stages  []*Stage        `json:"stages"`

	phases map[string]*Phase
}

// Phase resolves a phase by exact name. An unknown phase is a configuration
// bug, never a runtime condition.
func (w *Workflow) Phase(name string) (*Phase, error) {
	phase, ok := w.phases[name]
	if !ok {
		return nil, newConfigurationError("workflow %q has no phase %q", w.Name, name)
	}
	return phase, nil
}

// Initial returns the first phase of the first stage.
func (w *Workflow) Initial() *Phase {
	return w.Stages[0].Phases[0]
}

// PhaseAfter returns the next phase in definition order, or nil when the
// given phase is the last one.
func (w *Workflow) PhaseAfter(phase *Phase) *Phase {
	seen := false
	for _, stage := range w.Stages {
		for _, candidate := range stage.Phases {
			if seen {
				return candidate
			}
			if candidate.Name == phase.Name {
				seen = true
			}
		}
	}
	return nil
}

// ActionsFor returns the actions on the phase the capability set may perform.
func (w *Workflow) ActionsFor(phase *Phase, caps CapabilitySet) []Action {
	permitted := make([]Action, 0, len(phase.Actions))
	for _, action := range phase.Actions {
		if action.Permitted(caps) {
			permitted = append(permitted, action)
		}
	}
	return permitted
}

var workflowRegistry = buildWorkflowRegistry()

// GetWorkflow resolves a workflow definition by name.
func GetWorkflow(name string) (*Workflow, error) {
	wf, ok := workflowRegistry[name]
	if !ok {
		return nil, newConfigurationError("unknown workflow %q", name)
	}
	return wf, nil
}

// Workflows returns every registered workflow definition.
func Workflows() []*Workflow {
	names := []string{WorkflowSingleStage, WorkflowTwoStage, WorkflowTwoStageSealed}
	all := make([]*Workflow, 0, len(names))
	for _, name := range names {
		all = append(all, workflowRegistry[name])
	}
	return all
}

// ValidateWorkflows checks every registered definition and returns the first
// configuration error found. Call it at startup so misconfiguration is fatal
// before any request is served.
func ValidateWorkflows() error {
	for _, wf := range Workflows() {
		if err := validateWorkflow(wf); err != nil {
			return err
		}
	}
	return nil
}

func validateWorkflow(wf *Workflow) error {
	if len(wf.Stages) == 0 {
		return newConfigurationError("workflow %q has no stages", wf.Name)
	}
	for i, stage := range wf.Stages {
		if stage.Ordinal != i {
			return newConfigurationError("workflow %q stage %q has ordinal %d, want %d", wf.Name, stage.Name, stage.Ordinal, i)
		}
		if len(stage.Phases) == 0 {
			return newConfigurationError("workflow %q stage %q has no phases", wf.Name, stage.Name)
		}
		prev := -1
		for _, phase := range stage.Phases {
			if phase.Ordinal <= prev {
				return newConfigurationError("workflow %q stage %q phase ordinals must be strictly increasing at %q", wf.Name, stage.Name, phase.Name)
			}
			prev = phase.Ordinal
			if phase.StageIndex != i {
				return newConfigurationError("workflow %q phase %q carries stage index %d, want %d", wf.Name, phase.Name, phase.StageIndex, i)
			}
			for _, action := range phase.Actions {
				target, ok := wf.phases[action.Target]
				if !ok {
					return newConfigurationError("workflow %q action %q on phase %q targets unknown phase %q", wf.Name, action.Name, phase.Name, action.Target)
				}
				if target.StageIndex < phase.StageIndex {
					return newConfigurationError("workflow %q action %q on phase %q moves backwards across stages", wf.Name, action.Name, phase.Name)
				}
				if target.StageIndex == phase.StageIndex && target.Ordinal < phase.Ordinal {
					return newConfigurationError("workflow %q action %q on phase %q moves backwards within stage %q", wf.Name, action.Name, phase.Name, stage.Name)
				}
				if len(action.Permissions) == 0 {
					return newConfigurationError("workflow %q action %q on phase %q has no permissions", wf.Name, action.Name, phase.Name)
				}
			}
		}
	}
	lastStage := wf.Stages[len(wf.Stages)-1]
	lastPhase := lastStage.Phases[len(lastStage.Phases)-1]
	if !lastPhase.Terminal() {
		return newConfigurationError("workflow %q final phase %q must be terminal", wf.Name, lastPhase.Name)
	}
	return nil
}

// Registered workflow names.
const (
	WorkflowSingleStage    = "single_stage"
	WorkflowTwoStage       = "two_stage"
	WorkflowTwoStageSealed = "two_stage_sealed"
)

func buildWorkflowRegistry() map[string]*Workflow {
	registry := make(map[string]*Workflow)
	for _, wf := range []*Workflow{
		singleStageWorkflow(),
		twoStageWorkflow(WorkflowTwoStage, "Concept & Proposal", VariantStandard),
		twoStageWorkflow(WorkflowTwoStageSealed, "Concept & Proposal (sealed)", VariantSealed),
	} {
		wf.phases = make(map[string]*Phase)
		for _, stage := range wf.Stages {
			for _, phase := range stage.Phases {
				if _, exists := wf.phases[phase.Name]; exists {
					panic(fmt.Sprintf("workflow %q declares phase %q twice", wf.Name, phase.Name))
				}
				wf.phases[phase.Name] = phase
			}
		}
		registry[wf.Name] = wf
	}
	return registry
}

func singleStageWorkflow() *Workflow {
	return &Workflow{
		Name:    WorkflowSingleStage,
		Display: "Request",
		Variant: VariantStandard,
		Stages: []*Stage{
			{
				Name:    "request",
				Display: "Request",
				Ordinal: 0,
				Phases: []*Phase{
					{
						Name:       "received",
						Display:    "Received",
						Stage:      "request",
						StageIndex: 0,
						Ordinal:    0,
						Actions: []Action{
							{Name: "open_review", Display: "Open review", Target: "internal_review", Permissions: []Capability{CapStaff}},
							{Name: "request_more_info", Display: "Request more information", Target: "received", Permissions: []Capability{CapStaff}},
							{Name: "reject", Display: "Reject", Target: "rejected", Permissions: []Capability{CapStaff}},
						},
					},
					{
						Name:       "internal_review",
						Display:    "Internal Review",
						Stage:      "request",
						StageIndex: 0,
						Ordinal:    1,
						Actions: []Action{
							{Name: "advance", Display: "Close review", Target: "determination", Permissions: []Capability{CapStaff}},
							{Name: "request_more_info", Display: "Request more information", Target: "internal_review", Permissions: []Capability{CapStaff}},
						},
					},
					{
						Name:            "determination",
						Display:         "Ready for Determination",
						Stage:           "request",
						StageIndex:      0,
						Ordinal:         2,
						RequiredReviews: 2,
						Actions: []Action{
							{Name: "accept", Display: "Accept", Target: "accepted", Permissions: []Capability{CapStaff}},
							{Name: "reject", Display: "Reject", Target: "rejected", Permissions: []Capability{CapStaff}},
							{Name: "request_more_info", Display: "Request more information", Target: "determination", Permissions: []Capability{CapStaff}},
						},
					},
					{
						Name:       "accepted",
						Display:    "Accepted",
						Stage:      "request",
						StageIndex: 0,
						Ordinal:    3,
					},
					{
						Name:       "rejected",
						Display:    "Rejected",
						Stage:      "request",
						StageIndex: 0,
						Ordinal:    4,
					},
				},
			},
		},
	}
}

func twoStageWorkflow(name, display string, variant WorkflowVariant) *Workflow {
	return &Workflow{
		Name:    name,
		Display: display,
		Variant: variant,
		Stages: []*Stage{
			{
				Name:    "concept",
				Display: "Concept Note",
				Ordinal: 0,
				Phases: []*Phase{
					{
						Name:       "received",
						Display:    "Concept Received",
						Stage:      "concept",
						StageIndex: 0,
						Ordinal:    0,
						Actions: []Action{
							{Name: "open_review", Display: "Open review", Target: "concept_internal_review", Permissions: []Capability{CapStaff}},
							{Name: "request_more_info", Display: "Request more information", Target: "received", Permissions: []Capability{CapStaff}},
							{Name: "reject", Display: "Reject", Target: "concept_rejected", Permissions: []Capability{CapStaff}},
						},
					},
					{
						Name:       "concept_internal_review",
						Display:    "Concept Review",
						Stage:      "concept",
						StageIndex: 0,
						Ordinal:    1,
						Actions: []Action{
							{Name: "advance", Display: "Close review", Target: "concept_determination", Permissions: []Capability{CapStaff}},
							{Name: "request_more_info", Display: "Request more information", Target: "concept_internal_review", Permissions: []Capability{CapStaff}},
						},
					},
					{
						Name:            "concept_determination",
						Display:         "Concept Determination",
						Stage:           "concept",
						StageIndex:      0,
						Ordinal:         2,
						RequiredReviews: 1,
						Actions: []Action{
							{Name: "invite", Display: "Invite to proposal", Target: "invited_to_proposal", Permissions: []Capability{CapStaff}},
							{Name: "reject", Display: "Reject", Target: "concept_rejected", Permissions: []Capability{CapStaff}},
							{Name: "request_more_info", Display: "Request more information", Target: "concept_determination", Permissions: []Capability{CapStaff}},
						},
					},
					{
						Name:       "invited_to_proposal",
						Display:    "Invited to Proposal",
						Stage:      "concept",
						StageIndex: 0,
						Ordinal:    3,
						Actions: []Action{
							{Name: "start_proposal", Display: "Start proposal", Target: "proposal_draft", Permissions: []Capability{CapApplicant, CapStaff}},
						},
					},
					{
						Name:       "concept_rejected",
						Display:    "Concept Rejected",
						Stage:      "concept",
						StageIndex: 0,
						Ordinal:    4,
					},
				},
			},
			{
				Name:    "proposal",
				Display: "Proposal",
				Ordinal: 1,
				Phases: []*Phase{
					{
						Name:       "proposal_draft",
						Display:    "Proposal Draft",
						Stage:      "proposal",
						StageIndex: 1,
						Ordinal:    0,
						Actions: []Action{
							{Name: "submit_proposal", Display: "Submit proposal", Target: "proposal_internal_review", Permissions: []Capability{CapApplicant, CapStaff}},
						},
					},
					{
						Name:       "proposal_internal_review",
						Display:    "Proposal Review",
						Stage:      "proposal",
						StageIndex: 1,
						Ordinal:    1,
						Actions: []Action{
							{Name: "advance", Display: "Open external review", Target: "external_review", Permissions: []Capability{CapStaff}},
							{Name: "request_more_info", Display: "Request more information", Target: "proposal_internal_review", Permissions: []Capability{CapStaff}},
						},
					},
					{
						Name:       "external_review",
						Display:    "External Review",
						Stage:      "proposal",
						StageIndex: 1,
						Ordinal:    2,
						Actions: []Action{
							{Name: "advance", Display: "Close review", Target: "proposal_determination", Permissions: []Capability{CapStaff}},
						},
					},
					{
						Name:            "proposal_determination",
						Display:         "Proposal Determination",
						Stage:           "proposal",
						StageIndex:      1,
						Ordinal:         3,
						RequiredReviews: 2,
						Actions: []Action{
							{Name: "accept", Display: "Accept", Target: "accepted", Permissions: []Capability{CapStaff}},
							{Name: "reject", Display: "Reject", Target: "rejected", Permissions: []Capability{CapStaff}},
							{Name: "request_more_info", Display: "Request more information", Target: "proposal_determination", Permissions: []Capability{CapStaff}},
						},
					},
					{
						Name:       "accepted",
						Display:    "Accepted",
						Stage:      "proposal",
						StageIndex: 1,
						Ordinal:    4,
					},
					{
						Name:       "rejected",
						Display:    "Rejected",
						Stage:      "proposal",
						StageIndex: 1,
						Ordinal:    5,
					},
				},
			},
		},
	}
}
