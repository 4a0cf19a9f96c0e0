package domain

type WorkflowState string

const (
	StateNotStarted     WorkflowState = "NOT_STARTED"
	StateInitiated      WorkflowState = "INITIATED"
	StateInProcess      WorkflowState = "IN_PROCESS"
	StateInternalReview WorkflowState = "INTERNAL_REVIEW"
	StateSentToReferent WorkflowState = "SENT_TO_REFERENT"
	StateReferentReview WorkflowState = "REFERENT_REVIEW"
	StateSentToControl  WorkflowState = "SENT_TO_CONTROL"
	StateControlReview  WorkflowState = "CONTROL_REVIEW"
	StateApproved       WorkflowState = "APPROVED"
	StateRejected       WorkflowState = "REJECTED"
)

// Ordered by institutional progress; REJECTED sits outside the main path.
var stateOrder = []WorkflowState{
	StateNotStarted,
	StateInitiated,
	StateInProcess,
	StateInternalReview,
	StateSentToReferent,
	StateReferentReview,
	StateSentToControl,
	StateControlReview,
	StateApproved,
}

var stateProgress = map[WorkflowState]int{
	StateNotStarted:     0,
	StateInitiated:      10,
	StateInProcess:      30,
	StateInternalReview: 60,
	StateSentToReferent: 80,
	StateReferentReview: 80,
	StateSentToControl:  90,
	StateControlReview:  90,
	StateApproved:       100,
	StateRejected:       0,
}

var reviewStates = map[WorkflowState]bool{
	StateInternalReview: true,
	StateSentToReferent: true,
	StateReferentReview: true,
	StateSentToControl:  true,
	StateControlReview:  true,
}

func (s WorkflowState) String() string {
	return string(s)
}

func (s WorkflowState) IsValid() bool {
	_, ok := stateProgress[s]
	return ok
}

// Progress is the completion percentage reported for the state.
func (s WorkflowState) Progress() int {
	return stateProgress[s]
}

// IsReviewState reports whether a document in this state is waiting on a reviewer decision.
func (s WorkflowState) IsReviewState() bool {
	return reviewStates[s]
}

func (s WorkflowState) IsTerminal() bool {
	return s == StateApproved
}

// Rank is the position of the state on the approval path. REJECTED ranks with NOT_STARTED.
func (s WorkflowState) Rank() int {
	for i, st := range stateOrder {
		if st == s {
			return i
		}
	}
	return 0
}

func ParseWorkflowState(v string) (WorkflowState, bool) {
	s := WorkflowState(v)
	return s, s.IsValid()
}

type Action string

const (
	ActionApprove         Action = "APPROVE"
	ActionReject          Action = "REJECT"
	ActionComment         Action = "COMMENT"
	ActionRequestApproval Action = "REQUEST_APPROVAL"
	ActionAdvance         Action = "ADVANCE"

	// Recorded by the engine itself, never requested by a caller.
	ActionCreate     Action = "CREATE"
	ActionNewVersion Action = "NEW_VERSION"
	ActionSystemSync Action = "SYSTEM_SYNC"
)

func (a Action) IsDecision() bool {
	return a == ActionApprove || a == ActionReject
}

// IsRequestable reports whether callers may ask the engine to apply the action.
func (a Action) IsRequestable() bool {
	switch a {
	case ActionApprove, ActionReject, ActionComment, ActionRequestApproval, ActionAdvance:
		return true
	default:
		return false
	}
}

type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleCoordinator Role = "COORDINATOR"
	RoleAnalyst     Role = "ANALYST"
)

func (r Role) IsManager() bool {
	return r == RoleAdmin || r == RoleCoordinator
}

// CanPerform gates requested actions by role. Managers may do anything; analysts drive their own rounds.
func CanPerform(role Role, action Action) bool {
	if role.IsManager() {
		return action.IsRequestable()
	}
	if role == RoleAnalyst {
		switch action {
		case ActionRequestApproval, ActionAdvance, ActionComment:
			return true
		}
	}
	return false
}

type Submitter string

const (
	SubmitterAnalyst  Submitter = "ANALYST"
	SubmitterReviewer Submitter = "REVIEWER"
	SubmitterUnknown  Submitter = "UNKNOWN"
)
