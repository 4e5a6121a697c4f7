package migrate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyport/storyport/internal/destination"
	"github.com/storyport/storyport/internal/idmap"
	"github.com/storyport/storyport/internal/model"
)

// fakeDest records every call so tests can assert on remote traffic.
type fakeDest struct {
	mu     sync.Mutex
	nextID int

	failWorkspace bool
	failStories   map[string]bool // by work item name

	totalCalls int
	workItems  map[string]*destination.WorkItem // name -> item
	groupings  []*destination.Grouping
	links      map[string]string // work item id -> grouping id
	relations  [][2]string       // blocker item id, blocked item id
	comments   []destination.CommentSpec
	periods    map[string][]string // period id -> item ids
	users      map[string]*destination.User
	invited    []string
}

func newFakeDest() *fakeDest {
	return &fakeDest{
		failStories: make(map[string]bool),
		workItems:   make(map[string]*destination.WorkItem),
		links:       make(map[string]string),
		periods:     make(map[string][]string),
		users:       make(map[string]*destination.User),
	}
}

func (f *fakeDest) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeDest) record() {
	f.totalCalls++
}

func (f *fakeDest) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totalCalls
}

func (f *fakeDest) Name() string { return "fake" }

func (f *fakeDest) Setup(ctx context.Context) error { return nil }

func (f *fakeDest) CreateWorkspace(ctx context.Context, p *model.Project) (*destination.Workspace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record()
	if f.failWorkspace {
		return nil, errors.New("workspace creation rejected")
	}
	return &destination.Workspace{ID: f.id("ws"), Key: "WS", Name: p.Name}, nil
}

func (f *fakeDest) FindUser(ctx context.Context, email string) (*destination.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record()
	return f.users[email], nil
}

func (f *fakeDest) InviteUser(ctx context.Context, ws *destination.Workspace, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record()
	f.invited = append(f.invited, email)
	return nil
}

func (f *fakeDest) AddUserToWorkspace(ctx context.Context, ws *destination.Workspace, u *destination.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record()
	return nil
}

func (f *fakeDest) CreateLabel(ctx context.Context, ws *destination.Workspace, l *model.Label, isEpic bool) (*destination.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record()
	return &destination.Label{ID: f.id("label"), Name: l.Name}, nil
}

func (f *fakeDest) CreateGrouping(ctx context.Context, ws *destination.Workspace, e *model.Epic) (*destination.Grouping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record()
	g := &destination.Grouping{ID: f.id("grp"), Name: e.Name}
	f.groupings = append(f.groupings, g)
	return g, nil
}

func (f *fakeDest) CreatePeriod(ctx context.Context, ws *destination.Workspace, it *model.Iteration, projectName string) (*destination.Period, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record()
	return &destination.Period{ID: f.id("period"), Number: it.Number}, nil
}

func (f *fakeDest) CreateWorkItem(ctx context.Context, ws *destination.Workspace, spec destination.WorkItemSpec) (*destination.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record()
	if f.failStories[spec.Name] {
		return nil, errors.New("work item rejected")
	}
	item := &destination.WorkItem{ID: f.id("item"), Key: spec.Name}
	f.workItems[spec.Name] = item
	return item, nil
}

func (f *fakeDest) CreateSubItem(ctx context.Context, ws *destination.Workspace, parent *destination.WorkItem, task *model.Task) (*destination.SubItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record()
	return &destination.SubItem{ID: f.id("sub")}, nil
}

func (f *fakeDest) CreateComment(ctx context.Context, item *destination.WorkItem, spec destination.CommentSpec) (*destination.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record()
	f.comments = append(f.comments, spec)
	return &destination.Comment{ID: f.id("comment")}, nil
}

func (f *fakeDest) AttachFile(ctx context.Context, item *destination.WorkItem, filename string, content []byte) (*destination.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record()
	return &destination.Attachment{ID: f.id("att"), Filename: filename}, nil
}

func (f *fakeDest) LinkToGrouping(ctx context.Context, item *destination.WorkItem, g *destination.Grouping) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record()
	f.links[item.ID] = g.ID
	return nil
}

func (f *fakeDest) CreateRelation(ctx context.Context, blocker, blocked *destination.WorkItem) (*destination.Relation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record()
	f.relations = append(f.relations, [2]string{blocker.ID, blocked.ID})
	return &destination.Relation{ID: f.id("rel")}, nil
}

func (f *fakeDest) AddToPeriod(ctx context.Context, ws *destination.Workspace, p *destination.Period, items []*destination.WorkItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record()
	for _, it := range items {
		f.periods[p.ID] = append(f.periods[p.ID], it.ID)
	}
	return nil
}

func newTestOrchestrator(t *testing.T, dest *fakeDest, force bool) *Orchestrator {
	t.Helper()
	processed, err := idmap.LoadProcessed(filepath.Join(t.TempDir(), "processed_fake.txt"))
	require.NoError(t, err)
	return New(Options{
		Dest:           dest,
		Processed:      processed,
		AttachmentRoot: t.TempDir(),
		StoryWorkers:   4,
		Force:          force,
	})
}

func simpleProject(stories ...*model.Story) *model.Project {
	return &model.Project{ID: 100, Name: "Apollo", Stories: stories}
}

func story(id int64, name string) *model.Story {
	return &model.Story{
		ID:        id,
		ProjectID: 100,
		Name:      name,
		Type:      model.StoryFeature,
		State:     model.StateUnstarted,
	}
}

func TestMigrateProjectIdempotence(t *testing.T) {
	dest := newFakeDest()
	orch := newTestOrchestrator(t, dest, false)
	p := simpleProject(story(1, "one"), story(2, "two"))

	_, err := orch.MigrateProject(context.Background(), p)
	require.NoError(t, err)
	firstRunCalls := dest.calls()
	require.Greater(t, firstRunCalls, 0)

	// A completed project is skipped without a single remote call.
	_, err = orch.MigrateProject(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, firstRunCalls, dest.calls())
}

func TestMigrateProjectForceRemigrates(t *testing.T) {
	dest := newFakeDest()
	orch := newTestOrchestrator(t, dest, true)
	p := simpleProject(story(1, "one"))

	_, err := orch.MigrateProject(context.Background(), p)
	require.NoError(t, err)
	firstRunCalls := dest.calls()

	_, err = orch.MigrateProject(context.Background(), p)
	require.NoError(t, err)
	assert.Greater(t, dest.calls(), firstRunCalls)
}

func TestMigrateProjectStoryIsolation(t *testing.T) {
	dest := newFakeDest()
	dest.failStories["story-3"] = true
	orch := newTestOrchestrator(t, dest, false)

	var stories []*model.Story
	for i := int64(1); i <= 10; i++ {
		stories = append(stories, story(i, fmt.Sprintf("story-%d", i)))
	}
	p := simpleProject(stories...)

	summary, err := orch.MigrateProject(context.Background(), p)
	require.NoError(t, err, "one failing story must not fail the run")
	assert.Len(t, dest.workItems, 9)
	assert.Equal(t, Count{Migrated: 9, Total: 10}, summary.Get("work items"))
}

func TestMigrateProjectWorkspaceFailureAborts(t *testing.T) {
	dest := newFakeDest()
	dest.failWorkspace = true
	orch := newTestOrchestrator(t, dest, false)
	p := simpleProject(story(1, "one"))

	_, err := orch.MigrateProject(context.Background(), p)
	var pe *ProjectError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, int64(100), pe.ProjectID)
	assert.Equal(t, StateNotStarted, pe.State)

	// Not marked processed: a later run retries from the beginning.
	dest.failWorkspace = false
	_, err = orch.MigrateProject(context.Background(), p)
	require.NoError(t, err)
	assert.Len(t, dest.workItems, 1)
}

func TestBlockerResolutionCreatesRelation(t *testing.T) {
	dest := newFakeDest()
	orch := newTestOrchestrator(t, dest, false)

	blocked := story(43, "blocked")
	blocked.Blockers = []*model.Blocker{
		{ID: 1, StoryID: 43, Description: "Blocked by #42 pending review", Resolved: false},
	}
	p := simpleProject(story(42, "blocker"), blocked)

	_, err := orch.MigrateProject(context.Background(), p)
	require.NoError(t, err)

	require.Len(t, dest.relations, 1)
	assert.Equal(t, dest.workItems["blocker"].ID, dest.relations[0][0])
	assert.Equal(t, dest.workItems["blocked"].ID, dest.relations[0][1])
}

func TestBlockerWithFailedReferenceYieldsNoRelation(t *testing.T) {
	dest := newFakeDest()
	dest.failStories["blocker"] = true
	orch := newTestOrchestrator(t, dest, false)

	blocked := story(43, "blocked")
	blocked.Blockers = []*model.Blocker{
		{ID: 1, StoryID: 43, Description: "Blocked by #42 pending review", Resolved: false},
	}
	p := simpleProject(story(42, "blocker"), blocked)

	_, err := orch.MigrateProject(context.Background(), p)
	require.NoError(t, err, "a dangling blocker reference is not an error")
	assert.Empty(t, dest.relations)
}

func TestResolvedBlockerIgnored(t *testing.T) {
	dest := newFakeDest()
	orch := newTestOrchestrator(t, dest, false)

	blocked := story(43, "blocked")
	blocked.Blockers = []*model.Blocker{
		{ID: 1, StoryID: 43, Description: "Blocked by #42", Resolved: true},
	}
	p := simpleProject(story(42, "blocker"), blocked)

	_, err := orch.MigrateProject(context.Background(), p)
	require.NoError(t, err)
	assert.Empty(t, dest.relations)
}

func TestEndToEndGroupingLink(t *testing.T) {
	dest := newFakeDest()
	orch := newTestOrchestrator(t, dest, false)

	label := &model.Label{ID: 5, ProjectID: 100, Name: "payments"}
	tagged := story(1, "tagged")
	tagged.Labels = []*model.Label{label}
	untagged := story(2, "untagged")

	p := simpleProject(tagged, untagged)
	p.Labels = []*model.Label{label}
	p.Epics = []*model.Epic{{ID: 9, ProjectID: 100, LabelID: 5, Name: "Payments Epic"}}

	_, err := orch.MigrateProject(context.Background(), p)
	require.NoError(t, err)

	require.Len(t, dest.groupings, 1)
	taggedItem := dest.workItems["tagged"]
	untaggedItem := dest.workItems["untagged"]
	assert.Equal(t, dest.groupings[0].ID, dest.links[taggedItem.ID])
	_, linked := dest.links[untaggedItem.ID]
	assert.False(t, linked, "untagged story must not be linked to any grouping")
}

func TestCommentsMigrateWithAttachmentsFirst(t *testing.T) {
	dest := newFakeDest()
	orch := newTestOrchestrator(t, dest, false)

	st := story(7, "with-comments")
	st.Comments = []*model.Comment{
		{
			ID:      1,
			StoryID: 7,
			Text:    "see attached",
			Attachments: []*model.FileAttachment{
				{ID: 11, CommentID: 1, Filename: "present.txt"},
				{ID: 12, CommentID: 1, Filename: "missing.txt"},
			},
		},
	}
	p := simpleProject(st)

	// Only the first attachment exists in the content store.
	root := orch.opts.AttachmentRoot
	dir := filepath.Join(root, "100", "7")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "11_present.txt"), []byte("data"), 0o644))

	summary, err := orch.MigrateProject(context.Background(), p)
	require.NoError(t, err)

	require.Len(t, dest.comments, 1)
	require.Len(t, dest.comments[0].Attachments, 1, "missing file fails only that attachment")
	assert.Equal(t, "present.txt", dest.comments[0].Attachments[0].Filename)
	assert.Equal(t, Count{Migrated: 1, Total: 2}, summary.Get("attachments"))
	assert.Equal(t, Count{Migrated: 1, Total: 1}, summary.Get("comments"))
}

func TestUsersMatchedAndInvited(t *testing.T) {
	dest := newFakeDest()
	dest.users["known@example.com"] = &destination.User{ID: "u1", Email: "known@example.com"}
	orch := newTestOrchestrator(t, dest, false)

	p := simpleProject()
	p.Members = []*model.Person{
		{ID: 1, Name: "Known", Email: "known@example.com"},
		{ID: 2, Name: "New", Email: "new@example.com"},
	}

	summary, err := orch.MigrateProject(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, []string{"new@example.com"}, dest.invited)
	assert.Equal(t, Count{Migrated: 2, Total: 2}, summary.Get("users"))
}

func TestWorkItemsAssociatedWithPeriods(t *testing.T) {
	dest := newFakeDest()
	orch := newTestOrchestrator(t, dest, false)

	iterID := int64(30)
	st := story(1, "sprinted")
	st.IterationID = &iterID

	p := simpleProject(st, story(2, "backlog"))
	p.Iterations = []*model.Iteration{{ID: iterID, ProjectID: 100, Number: 3}}

	_, err := orch.MigrateProject(context.Background(), p)
	require.NoError(t, err)

	var allAssociated []string
	for _, ids := range dest.periods {
		allAssociated = append(allAssociated, ids...)
	}
	require.Len(t, allAssociated, 1)
	assert.Equal(t, dest.workItems["sprinted"].ID, allAssociated[0])
}
