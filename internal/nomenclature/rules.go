package nomenclature

import (
	"fmt"
	"regexp"
	"strings"

	"approval-tracker/internal/domain"
)

// Rule names the class of check that rejected a candidate version.
type Rule string

const (
	RuleFilename      Rule = "filename"
	RuleAction        Rule = "action"
	RuleStage         Rule = "stage"
	RuleAnalystRound  Rule = "v0.n odd"
	RuleReferentRound Rule = "v1.n.i odd"
	RuleControlRound  Rule = "v1.n.iAR odd"
	RuleFinalStamp    Rule = "v1.nACG"
	RuleMonotonic     Rule = "monotonic"
	RuleVersion       Rule = "version"
	RuleSubmitter     Rule = "submitter"
)

type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
	Rule  Rule   `json:"rule,omitempty"`
}

var (
	internalRoundRe = regexp.MustCompile(`^v0\.\d+$`)
	referentRoundRe = regexp.MustCompile(`^v1\.\d+\.\d+$`)
	controlRoundRe  = regexp.MustCompile(`^v1\.\d+\.\d+AR$`)
	finalStampRe    = regexp.MustCompile(`^v1\.\d+ACG$`)
)

var okResult = ValidationResult{Valid: true}

func invalid(rule Rule, format string, args ...any) ValidationResult {
	return ValidationResult{Valid: false, Error: fmt.Sprintf(format, args...), Rule: rule}
}

// ValidateTransitionVersion decides whether the version encoded in filename is a
// legal successor for a reviewer decision on a document in currentState.
// Only analyst rounds can be approved or rejected; reviewer rounds are the
// reviewer's own annotation pass.
func ValidateTransitionVersion(filename, currentVersion string, currentState domain.WorkflowState, action domain.Action) ValidationResult {
	if !action.IsDecision() {
		return invalid(RuleAction, "action %s does not take a reviewed version, expected APPROVE or REJECT", action)
	}

	parsed := Parse(filename)
	if !parsed.Valid {
		return invalid(RuleFilename, "filename is not valid: %s", strings.Join(parsed.Errors, "; "))
	}
	return ValidateDecisionVersion(parsed.Tokens.Nomenclature, currentVersion, currentState, action)
}

// ValidateDecisionVersion applies the decision rules to a bare version, for
// decisions that name the reviewed version without attaching its file.
func ValidateDecisionVersion(candidate, currentVersion string, currentState domain.WorkflowState, action domain.Action) ValidationResult {
	if !action.IsDecision() {
		return invalid(RuleAction, "action %s does not take a reviewed version, expected APPROVE or REJECT", action)
	}
	if _, ok := matchStrict(candidate); !ok {
		return invalid(RuleVersion, "%q is not a recognised version", candidate)
	}

	var res ValidationResult
	switch currentState {
	case domain.StateInternalReview:
		res = checkRound(candidate, internalRoundRe, RuleAnalystRound,
			"from INTERNAL_REVIEW the reviewed version must be v0.n with odd n (analyst round, e.g. v0.1, v0.3); got %q")
	case domain.StateSentToReferent, domain.StateReferentReview:
		res = checkRound(candidate, referentRoundRe, RuleReferentRound,
			"from "+currentState.String()+" the reviewed version must be v1.n.i with odd i (analyst round, e.g. v1.1.1); got %q")
	case domain.StateSentToControl, domain.StateControlReview:
		if finalStampRe.MatchString(candidate) {
			if action != domain.ActionApprove {
				return invalid(RuleFinalStamp, "%q is the final approval stamp and can only be used to APPROVE", candidate)
			}
			return okResult
		}
		res = checkRound(candidate, controlRoundRe, RuleControlRound,
			"from "+currentState.String()+" the reviewed version must be v1.n.iAR with odd i (e.g. v1.1.1AR) or v1.nACG to approve; got %q")
	default:
		return invalid(RuleStage, "documents in %s have no pending decision", currentState)
	}
	if !res.Valid {
		return res
	}

	return checkMonotonic(candidate, currentVersion)
}

// ValidateSubmission decides whether role may move a document to candidate
// outside a decision: on creation, on a new upload or with REQUEST_APPROVAL
// and ADVANCE. Analysts submit drafts and odd rounds only. Stage stamps and
// even rounds are reviewer output and need a manager.
func ValidateSubmission(candidate, currentVersion string, role domain.Role) ValidationResult {
	if _, ok := matchStrict(candidate); !ok {
		return invalid(RuleVersion, "%q is not a recognised version", candidate)
	}
	if !role.IsManager() && SubmitterFor(candidate) != domain.SubmitterAnalyst {
		return invalid(RuleSubmitter, "role %s may not submit %q, it is reviewer output", role, candidate)
	}
	return checkMonotonic(candidate, currentVersion)
}

func checkMonotonic(candidate, currentVersion string) ValidationResult {
	if current := strings.TrimSpace(currentVersion); current != "" && Compare(candidate, current) < 0 {
		return invalid(RuleMonotonic, "version %q precedes the current version %q", candidate, current)
	}
	return okResult
}

func checkRound(candidate string, shape *regexp.Regexp, rule Rule, message string) ValidationResult {
	if !shape.MatchString(candidate) || SubmitterFor(candidate) != domain.SubmitterAnalyst {
		return invalid(rule, message, candidate)
	}
	return okResult
}
