package nomenclature

import (
	"regexp"
	"strings"

	"approval-tracker/internal/domain"
)

type Resolution struct {
	State    domain.WorkflowState `json:"state"`
	Progress int                  `json:"progress"`
}

type pattern struct {
	name    string
	strict  *regexp.Regexp
	lenient *regexp.Regexp
	state   domain.WorkflowState
}

func newPattern(name string, expr string, state domain.WorkflowState) pattern {
	return pattern{
		name:    name,
		strict:  regexp.MustCompile(expr),
		lenient: regexp.MustCompile(`(?i)` + expr),
		state:   state,
	}
}

// First match wins: several expressions share a prefix.
var patternTable = []pattern{
	newPattern("initiated", `^0\.0$`, domain.StateInitiated),
	newPattern("in_process", `^0\.[1-9]\d*$`, domain.StateInProcess),
	newPattern("internal_review", `^v0\.\d+$`, domain.StateInternalReview),
	newPattern("sent_to_referent", `^v1\.\d+$`, domain.StateSentToReferent),
	newPattern("referent_review", `^v1\.\d+\.\d+$`, domain.StateReferentReview),
	newPattern("sent_to_control", `^v1\.\d+AR$`, domain.StateSentToControl),
	newPattern("control_review", `^v1\.\d+\.\d+AR$`, domain.StateControlReview),
	newPattern("approved", `^v1\.\d+ACG$`, domain.StateApproved),
}

var (
	notStarted = Resolution{State: domain.StateNotStarted, Progress: domain.StateNotStarted.Progress()}
	inProcess  = Resolution{State: domain.StateInProcess, Progress: domain.StateInProcess.Progress()}
	digitsRe   = regexp.MustCompile(`\d+`)
	roundRe    = regexp.MustCompile(`(\d+)(?:AR|ACG)?$`)
)

func matchStrict(nomenclature string) (pattern, bool) {
	for _, p := range patternTable {
		if p.strict.MatchString(nomenclature) {
			return p, true
		}
	}
	return pattern{}, false
}

func matchLenient(version string) (pattern, bool) {
	for _, p := range patternTable {
		if p.lenient.MatchString(version) {
			return p, true
		}
	}
	return pattern{}, false
}

// Resolve maps a stored version string to the state and progress it implies.
// It is total: unknown input resolves to NOT_STARTED. Any otherwise unrecognised
// version starting with "0." resolves to IN_PROCESS so legacy drafts keep a
// sensible state instead of dropping to zero.
func Resolve(version string) Resolution {
	v := strings.TrimSpace(version)
	switch v {
	case "", "-", "0":
		return notStarted
	}
	if p, ok := matchLenient(v); ok {
		return Resolution{State: p.state, Progress: p.state.Progress()}
	}
	if strings.HasPrefix(v, "0.") {
		return inProcess
	}
	return notStarted
}

// FormatForDisplay lowercases a leading "V". It never changes what Resolve returns.
func FormatForDisplay(version string) string {
	v := strings.TrimSpace(version)
	if strings.HasPrefix(v, "V") {
		return "v" + v[1:]
	}
	return v
}

// Compare orders versions along the approval path: first by the stage they
// resolve to, then by their numeric components. It returns -1, 0 or 1.
func Compare(a, b string) int {
	ra, rb := Resolve(a).State.Rank(), Resolve(b).State.Rank()
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	na, nb := numbers(a), numbers(b)
	for i := 0; i < len(na) && i < len(nb); i++ {
		if c := compareDigits(na[i], nb[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(na) < len(nb):
		return -1
	case len(na) > len(nb):
		return 1
	}
	return 0
}

func numbers(v string) []string {
	return digitsRe.FindAllString(strings.TrimSpace(v), -1)
}

// compareDigits compares unsigned decimal strings of any length.
func compareDigits(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// SubmitterFor tags a version with who produced it. Odd rounds are analyst
// submissions, even rounds and stage stamps are reviewer output.
func SubmitterFor(version string) domain.Submitter {
	v := strings.ToUpper(strings.TrimSpace(version))
	p, ok := matchLenient(v)
	if !ok {
		if strings.HasPrefix(v, "0.") {
			return domain.SubmitterAnalyst
		}
		return domain.SubmitterUnknown
	}
	switch p.state {
	case domain.StateInitiated, domain.StateInProcess:
		return domain.SubmitterAnalyst
	case domain.StateSentToReferent, domain.StateSentToControl, domain.StateApproved:
		return domain.SubmitterReviewer
	}
	m := roundRe.FindStringSubmatch(v)
	if m == nil {
		return domain.SubmitterUnknown
	}
	if isOdd(m[1]) {
		return domain.SubmitterAnalyst
	}
	return domain.SubmitterReviewer
}

func isOdd(digits string) bool {
	if digits == "" {
		return false
	}
	return (digits[len(digits)-1]-'0')%2 == 1
}
