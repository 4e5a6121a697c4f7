// Package model defines the immutable source-side entities consumed by the
// migration engine. A Project and everything hanging off it is loaded once
// from the snapshot store and passed by reference through the orchestrator;
// nothing in this package is mutated after loading.
package model

import (
	"fmt"
	"path/filepath"
	"time"
)

// StoryType is the source work item classification.
type StoryType string

const (
	StoryFeature StoryType = "feature"
	StoryBug     StoryType = "bug"
	StoryChore   StoryType = "chore"
)

// StoryState is the source lifecycle state of a story.
type StoryState string

const (
	StateUnstarted StoryState = "unstarted"
	StateStarted   StoryState = "started"
	StateFinished  StoryState = "finished"
	StateDelivered StoryState = "delivered"
	StateAccepted  StoryState = "accepted"
	StateRejected  StoryState = "rejected"
)

// Project is the root container for one migration run.
type Project struct {
	ID          int64
	Name        string
	Description string
	Members     []*Person
	Labels      []*Label
	Epics       []*Epic
	Iterations  []*Iteration
	Stories     []*Story
}

// Person is identified by a stable source id; the email is the natural key
// used to match users across systems.
type Person struct {
	ID       int64
	Name     string
	Email    string
	Initials string
	Username string
}

// Label is name-scoped to a project.
type Label struct {
	ID          int64
	ProjectID   int64
	Name        string
	Description string
}

// Epic groups stories indirectly: it always references exactly one Label,
// and stories carrying that label belong to the epic.
type Epic struct {
	ID          int64
	ProjectID   int64
	LabelID     int64
	Name        string
	Description string
}

// Iteration is a bounded planning window, identified by a sequence number
// unique within its project.
type Iteration struct {
	ID        int64
	ProjectID int64
	Number    int
	Start     time.Time
	Finish    time.Time
	Kind      string
	Velocity  float64
	StoryIDs  []int64
}

// Story is the unit of trackable work on the source side.
type Story struct {
	ID            int64
	ProjectID     int64
	Name          string
	Description   string
	Type          StoryType
	State         StoryState
	Estimate      *float64
	Priority      string
	RequestedByID int64
	OwnerIDs      []int64
	Labels        []*Label
	IterationID   *int64
	Tasks         []*Task
	Comments      []*Comment
	Blockers      []*Blocker
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Task is an ordered sub-item of a story.
type Task struct {
	ID          int64
	StoryID     int64
	Description string
	Complete    bool
	Position    int
}

// Comment belongs to a story. Attachments are migrated before the comment
// that references them.
type Comment struct {
	ID          int64
	StoryID     int64
	Text        string
	PersonID    int64
	CreatedAt   time.Time
	Attachments []*FileAttachment
}

// FileAttachment points at a blob in the local content store.
type FileAttachment struct {
	ID          int64
	CommentID   int64
	Filename    string
	ContentType string
	Size        int64
	UploaderID  int64
}

// Path returns the attachment's location under the content-store root,
// laid out as {root}/{projectID}/{storyID}/{attachmentID}_{filename}.
func (a *FileAttachment) Path(root string, projectID, storyID int64) string {
	name := fmt.Sprintf("%d_%s", a.ID, a.Filename)
	return filepath.Join(root, fmt.Sprint(projectID), fmt.Sprint(storyID), name)
}

// Blocker is a free-text blocking note on a story. Unresolved blockers may
// reference another story's id as "#<digits>" inside the description.
type Blocker struct {
	ID          int64
	StoryID     int64
	Description string
	Resolved    bool
	PersonID    int64
}

// IterationFor returns the project's iteration with the given id, or nil.
func (p *Project) IterationFor(id *int64) *Iteration {
	if id == nil {
		return nil
	}
	for _, it := range p.Iterations {
		if it.ID == *id {
			return it
		}
	}
	return nil
}

// EpicForLabel returns the epic keyed by the given label id, or nil. This is
// the label join used to attach stories to epics.
func (p *Project) EpicForLabel(labelID int64) *Epic {
	for _, e := range p.Epics {
		if e.LabelID == labelID {
			return e
		}
	}
	return nil
}
