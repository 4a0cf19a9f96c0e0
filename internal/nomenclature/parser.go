package nomenclature

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"approval-tracker/internal/domain"
)

const (
	MaxFilenameLength = 55
	separator         = " - "
)

var (
	extensionRe = regexp.MustCompile(`\.([A-Za-z][A-Za-z0-9]{0,7})$`)
	docTypeRe   = regexp.MustCompile(`(?i)\b(AS[ _-]IS|TO[ _-]BE|FCE|PM)\b`)
)

type ParseResult struct {
	Valid      bool                 `json:"valid"`
	Tokens     *domain.VersionToken `json:"tokens,omitempty"`
	Resolution *Resolution          `json:"resolution,omitempty"`
	Errors     []string             `json:"errors"`
}

// Context is what the caller expects the filename to encode when uploading
// into a known document slot. Zero fields are not checked.
type Context struct {
	Project      domain.Project       `json:"project,omitempty"`
	Microprocess string               `json:"microprocess,omitempty"`
	DocType      domain.DocType       `json:"doc_type,omitempty"`
	Stage        domain.WorkflowState `json:"stage,omitempty"`
}

// Parse splits "<PROJECT> - <description> <nomenclature>.<ext>" into tokens.
// Every rule is checked so the caller can show all problems at once; tokens are
// returned whenever the name could be split, even if other rules failed.
func Parse(filename string) ParseResult {
	errs := make([]string, 0)

	if n := utf8.RuneCountInString(filename); n > MaxFilenameLength {
		errs = append(errs, fmt.Sprintf("filename exceeds %d characters (got %d)", MaxFilenameLength, n))
	}

	base, ext := splitExtension(filename)
	if ext == "" {
		errs = append(errs, "file extension is missing")
	}

	idx := strings.Index(base, separator)
	if idx < 0 {
		errs = append(errs, `separator " - " between project and description is missing`)
		return newResult(errs, nil, nil)
	}

	rawProject := base[:idx]
	project := domain.Project(rawProject)
	if !project.IsValid() {
		errs = append(errs, fmt.Sprintf("project %q is not one of HPC, HSR", rawProject))
	}

	rest := base[idx+len(separator):]
	var description, nomenclature string
	if cut := strings.LastIndex(rest, " "); cut >= 0 {
		description = cleanDescription(rest[:cut])
		nomenclature = rest[cut+1:]
	} else {
		nomenclature = rest
	}
	if description == "" {
		errs = append(errs, "description is missing")
	}

	var resolution *Resolution
	switch p, ok := matchStrict(nomenclature); {
	case nomenclature == "":
		errs = append(errs, "nomenclature is missing")
	case !ok:
		errs = append(errs, fmt.Sprintf("nomenclature %q not recognized", nomenclature))
	default:
		resolution = &Resolution{State: p.state, Progress: p.state.Progress()}
	}

	docType, microprocess := splitDocType(description)
	tokens := &domain.VersionToken{
		Project:      project,
		Description:  description,
		Microprocess: microprocess,
		DocType:      docType,
		Nomenclature: nomenclature,
		Extension:    ext,
	}
	return newResult(errs, tokens, resolution)
}

// ParseWithContext parses filename and cross-checks the tokens against the slot it is uploaded into.
func ParseWithContext(filename string, expected Context) ParseResult {
	res := Parse(filename)
	if res.Tokens == nil {
		return res
	}
	t := res.Tokens
	if expected.Project != "" && t.Project != expected.Project {
		res.Errors = append(res.Errors, fmt.Sprintf("expected project %s, filename encodes %s", expected.Project, t.Project))
	}
	if expected.Microprocess != "" && !strings.Contains(foldKey(t.Microprocess), foldKey(expected.Microprocess)) {
		res.Errors = append(res.Errors, fmt.Sprintf("expected microprocess %q, filename encodes %q", expected.Microprocess, t.Microprocess))
	}
	if expected.DocType != "" && t.DocType != "" && t.DocType != expected.DocType {
		res.Errors = append(res.Errors, fmt.Sprintf("expected document type %s, filename encodes %s", expected.DocType, t.DocType))
	}
	if expected.Stage != "" && res.Resolution != nil && res.Resolution.State != expected.Stage {
		res.Errors = append(res.Errors, fmt.Sprintf("expected stage %s, filename encodes %s", expected.Stage, res.Resolution.State))
	}
	res.Valid = len(res.Errors) == 0
	return res
}

func newResult(errs []string, tokens *domain.VersionToken, resolution *Resolution) ParseResult {
	return ParseResult{
		Valid:      len(errs) == 0,
		Tokens:     tokens,
		Resolution: resolution,
		Errors:     errs,
	}
}

func splitExtension(filename string) (string, string) {
	loc := extensionRe.FindStringSubmatchIndex(filename)
	if loc == nil {
		return filename, ""
	}
	return filename[:loc[0]], filename[loc[2]:loc[3]]
}

func cleanDescription(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, " -")
	return strings.TrimSpace(s)
}

func splitDocType(description string) (domain.DocType, string) {
	loc := docTypeRe.FindStringIndex(description)
	if loc == nil {
		return "", description
	}
	raw := strings.ToUpper(description[loc[0]:loc[1]])
	var docType domain.DocType
	switch {
	case strings.HasPrefix(raw, "AS"):
		docType = domain.DocTypeAsIs
	case strings.HasPrefix(raw, "TO"):
		docType = domain.DocTypeToBe
	default:
		docType = domain.DocType(raw)
	}
	rest := description[:loc[0]] + " " + description[loc[1]:]
	return docType, cleanDescription(strings.Trim(strings.Join(strings.Fields(rest), " "), "- "))
}

// foldKey drops accents, case and repeated whitespace so "Gestión" matches "gestion".
func foldKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.Join(strings.Fields(out), " "))
}
