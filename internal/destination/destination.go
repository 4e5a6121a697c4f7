// Package destination defines the abstract surface of a migration target.
// Each implementation (linear, jira) translates these operations into its
// own API calls through the shared bounded client; the orchestrator never
// sees transport details or per-product payloads.
package destination

import (
	"context"
	"time"

	"github.com/storyport/storyport/internal/model"
)

// Shadow entities: destination identifiers created during a run. They are
// immutable once created; the orchestrator never deletes or re-creates one
// it has already mapped.

// Workspace is the top-level destination container for one source project.
type Workspace struct {
	ID      string
	Key     string
	Name    string
	BoardID string // populated by destinations that carry a board concept
}

// User is a destination account matched or invited for a source person.
type User struct {
	ID          string
	Email       string
	DisplayName string
	Active      bool
	// Pending is set when the user was invited and has no account id yet;
	// the id is backfilled outside this run's control.
	Pending bool
}

// Label is a destination label.
type Label struct {
	ID   string
	Name string
}

// Grouping is the destination counterpart of an epic.
type Grouping struct {
	ID   string
	Key  string
	Name string
}

// Period is the destination counterpart of an iteration.
type Period struct {
	ID     string
	Number int
}

// WorkItem is the destination counterpart of a story.
type WorkItem struct {
	ID  string
	Key string
}

// SubItem is the destination counterpart of a task.
type SubItem struct {
	ID  string
	Key string
}

// Comment is a created destination comment.
type Comment struct {
	ID string
}

// Attachment is a created destination attachment reference.
type Attachment struct {
	ID       string
	Filename string
}

// Relation is a directed "blocks" link between two work items.
type Relation struct {
	ID string
}

// WorkItemSpec carries everything a destination needs to create one work
// item. Identifier fields are destination ids already resolved from the run
// mappings; empty strings mean "not set".
type WorkItemSpec struct {
	Name        string
	Description string
	Type        model.StoryType
	State       model.StoryState
	Estimate    *float64
	Priority    string
	AssigneeID  string
	ReporterID  string
	PeriodID    string
	Labels      []string
}

// CommentSpec carries one comment plus its already-migrated attachments; the
// destination renders attachment references with its own syntax.
type CommentSpec struct {
	Text        string
	AuthorName  string
	CreatedAt   time.Time
	Attachments []*Attachment
}

// Destination is one migration target. Implementations keep any per-product
// caches (workflow states, transition ids) internal so the orchestrator
// stays product-agnostic.
type Destination interface {
	Name() string

	// Setup performs one-time global preparation (e.g. a shared workflow
	// scheme). A failure here aborts the whole run.
	Setup(ctx context.Context) error

	CreateWorkspace(ctx context.Context, project *model.Project) (*Workspace, error)

	// FindUser matches by email; (nil, nil) when no account exists.
	FindUser(ctx context.Context, email string) (*User, error)
	InviteUser(ctx context.Context, ws *Workspace, email string) error
	AddUserToWorkspace(ctx context.Context, ws *Workspace, user *User) error

	CreateLabel(ctx context.Context, ws *Workspace, label *model.Label, isEpic bool) (*Label, error)
	CreateGrouping(ctx context.Context, ws *Workspace, epic *model.Epic) (*Grouping, error)
	CreatePeriod(ctx context.Context, ws *Workspace, it *model.Iteration, projectName string) (*Period, error)

	CreateWorkItem(ctx context.Context, ws *Workspace, spec WorkItemSpec) (*WorkItem, error)
	CreateSubItem(ctx context.Context, ws *Workspace, parent *WorkItem, task *model.Task) (*SubItem, error)

	CreateComment(ctx context.Context, item *WorkItem, spec CommentSpec) (*Comment, error)
	AttachFile(ctx context.Context, item *WorkItem, filename string, content []byte) (*Attachment, error)

	LinkToGrouping(ctx context.Context, item *WorkItem, grouping *Grouping) error
	CreateRelation(ctx context.Context, blocker, blocked *WorkItem) (*Relation, error)
	AddToPeriod(ctx context.Context, ws *Workspace, period *Period, items []*WorkItem) error
}
