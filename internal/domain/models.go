package domain

import "time"

type Project string

const (
	ProjectHPC Project = "HPC"
	ProjectHSR Project = "HSR"
)

func (p Project) IsValid() bool {
	return p == ProjectHPC || p == ProjectHSR
}

type DocType string

const (
	DocTypeAsIs DocType = "AS_IS"
	DocTypeFCE  DocType = "FCE"
	DocTypePM   DocType = "PM"
	DocTypeToBe DocType = "TO_BE"
)

func (d DocType) IsValid() bool {
	switch d {
	case DocTypeAsIs, DocTypeFCE, DocTypePM, DocTypeToBe:
		return true
	default:
		return false
	}
}

// SystemActorID identifies writes made by the system itself (resync, drop-zone imports).
const SystemActorID = "system"

// VersionToken is what a structured filename encodes.
type VersionToken struct {
	Project      Project `json:"project"`
	Description  string  `json:"description"`
	Microprocess string  `json:"microprocess"`
	DocType      DocType `json:"doc_type,omitempty"`
	Nomenclature string  `json:"nomenclature"`
	Extension    string  `json:"extension"`
}

type HierarchyRefs struct {
	Project      Project `json:"project"`
	Macroprocess string  `json:"macroprocess"`
	Process      string  `json:"process"`
	Microprocess string  `json:"microprocess"`
	DocType      DocType `json:"doc_type"`
}

// DocFile is the current file held in a document's slot for one stage.
type DocFile struct {
	Stage       WorkflowState `json:"stage"`
	Filename    string        `json:"filename"`
	ObjectKey   string        `json:"object_key"`
	Version     string        `json:"version"`
	SubmittedBy Submitter     `json:"submitted_by"`
	UploadedBy  string        `json:"uploaded_by"`
	UploadedAt  time.Time     `json:"uploaded_at"`
}

type Document struct {
	ID                   string        `json:"id"`
	Title                string        `json:"title"`
	Description          string        `json:"description"`
	Hierarchy            HierarchyRefs `json:"hierarchy"`
	AuthorID             string        `json:"author_id"`
	Assignees            []string      `json:"assignees"`
	State                WorkflowState `json:"state"`
	Version              string        `json:"version"`
	Progress             int           `json:"progress"`
	HasPendingRequest    bool          `json:"has_pending_request"`
	SubmittedBy          Submitter     `json:"submitted_by"`
	Files                []DocFile     `json:"files"`
	IgnoredInconsistency string        `json:"ignored_inconsistency,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// CurrentFile returns the file held in the slot for stage.
func (d *Document) CurrentFile(stage WorkflowState) (DocFile, bool) {
	for _, f := range d.Files {
		if f.Stage == stage {
			return f, true
		}
	}
	return DocFile{}, false
}

// ReplaceCurrentFile puts f into its stage slot and returns the file it superseded, if any.
func (d *Document) ReplaceCurrentFile(f DocFile) (DocFile, bool) {
	for i, existing := range d.Files {
		if existing.Stage == f.Stage {
			d.Files[i] = f
			return existing, true
		}
	}
	d.Files = append(d.Files, f)
	return DocFile{}, false
}

type HistoryEntry struct {
	ID            string        `json:"id"`
	DocumentID    string        `json:"document_id"`
	UserID        string        `json:"user_id"`
	Action        Action        `json:"action"`
	PreviousState WorkflowState `json:"previous_state"`
	NewState      WorkflowState `json:"new_state"`
	Version       string        `json:"version"`
	Comment       string        `json:"comment"`
	Timestamp     time.Time     `json:"timestamp"`
}

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

type NotificationType string

const (
	NotificationDocumentCreated NotificationType = "DOCUMENT_CREATED"
	NotificationNewVersion      NotificationType = "NEW_VERSION"
	NotificationTransition      NotificationType = "TRANSITION"
)

type Notification struct {
	ID         string           `json:"id"`
	DocumentID string           `json:"document_id"`
	Type       NotificationType `json:"type"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	ActorName  string           `json:"actor_name"`
	ActorID    string           `json:"actor_id"`
	CreatedAt  time.Time        `json:"created_at"`
}

type DocumentFilter struct {
	Project      Project
	Microprocess string
	DocType      DocType
	State        WorkflowState
	AssigneeID   string
}

// Assignment is what the hierarchy holds for one (project, microprocess) leaf.
type Assignment struct {
	AssigneeIDs      []string  `json:"assignee_ids" yaml:"assignees"`
	RequiredDocTypes []DocType `json:"required_doc_types" yaml:"doc_types"`
}
