// Package linear implements the GraphQL destination. Source projects become
// teams, epics become projects, iterations become cycles, stories become
// issues and tasks become sub-issues.
package linear

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/storyport/storyport/internal/destination"
	"github.com/storyport/storyport/internal/model"
	"github.com/storyport/storyport/internal/remote"
)

// Client drives one Linear organization through the bounded API client.
// Workflow-state and label caches are per workspace (team) because Linear
// scopes both to the team.
type Client struct {
	rc *remote.Client

	mu     sync.Mutex
	states map[string]map[string]string // team id -> state name -> state id
	labels map[string]map[string]string // team id -> label name -> label id
}

// New wraps a bounded client pointed at the Linear GraphQL endpoint.
func New(rc *remote.Client) *Client {
	return &Client{
		rc:     rc,
		states: make(map[string]map[string]string),
		labels: make(map[string]map[string]string),
	}
}

func (c *Client) Name() string { return "linear" }

// Setup verifies the credentials before any migration work starts.
func (c *Client) Setup(ctx context.Context) error {
	query := `query { viewer { id } }`
	if _, err := c.rc.GraphQL(ctx, query, nil); err != nil {
		return fmt.Errorf("failed to verify Linear credentials: %w", err)
	}
	return nil
}

// CreateWorkspace creates a team and primes the workflow-state cache for it.
func (c *Client) CreateWorkspace(ctx context.Context, project *model.Project) (*destination.Workspace, error) {
	query := `
	mutation CreateTeam($name: String!, $key: String!, $description: String) {
	  teamCreate(input: {name: $name, key: $key, description: $description}) {
	    success
	    team { id name key }
	  }
	}`
	name := sanitizeName(project.Name)
	vars := map[string]any{
		"name":        name,
		"key":         teamKey(name),
		"description": project.Description,
	}

	data, err := c.rc.GraphQL(ctx, query, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to create team: %w", err)
	}

	var resp struct {
		TeamCreate struct {
			Success bool `json:"success"`
			Team    struct {
				ID   string `json:"id"`
				Name string `json:"name"`
				Key  string `json:"key"`
			} `json:"team"`
		} `json:"teamCreate"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse team response: %w", err)
	}
	if !resp.TeamCreate.Success {
		return nil, fmt.Errorf("team creation reported as unsuccessful")
	}

	ws := &destination.Workspace{
		ID:   resp.TeamCreate.Team.ID,
		Key:  resp.TeamCreate.Team.Key,
		Name: resp.TeamCreate.Team.Name,
	}
	if err := c.fetchStates(ctx, ws.ID); err != nil {
		return nil, err
	}
	return ws, nil
}

func (c *Client) fetchStates(ctx context.Context, teamID string) error {
	query := `
	query TeamStates($teamId: String!) {
	  team(id: $teamId) {
	    states { nodes { id name type } }
	  }
	}`
	data, err := c.rc.GraphQL(ctx, query, map[string]any{"teamId": teamID})
	if err != nil {
		return fmt.Errorf("failed to fetch workflow states: %w", err)
	}

	var resp struct {
		Team struct {
			States struct {
				Nodes []struct {
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"nodes"`
			} `json:"states"`
		} `json:"team"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("failed to parse workflow states: %w", err)
	}

	byName := make(map[string]string, len(resp.Team.States.Nodes))
	for _, s := range resp.Team.States.Nodes {
		byName[s.Name] = s.ID
	}

	c.mu.Lock()
	c.states[teamID] = byName
	c.mu.Unlock()
	return nil
}

func (c *Client) stateID(teamID string, state model.StoryState) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[teamID][stateName(state)]
}

// FindUser matches a destination account by email.
func (c *Client) FindUser(ctx context.Context, email string) (*destination.User, error) {
	query := `
	query GetUserByEmail($email: String!) {
	  users(filter: { email: { eq: $email } }) {
	    nodes { id name email active }
	  }
	}`
	data, err := c.rc.GraphQL(ctx, query, map[string]any{"email": email})
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %s: %w", email, err)
	}

	var resp struct {
		Users struct {
			Nodes []struct {
				ID     string `json:"id"`
				Name   string `json:"name"`
				Email  string `json:"email"`
				Active bool   `json:"active"`
			} `json:"nodes"`
		} `json:"users"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}
	if len(resp.Users.Nodes) == 0 {
		return nil, nil
	}
	if len(resp.Users.Nodes) > 1 {
		return nil, fmt.Errorf("found multiple users with email %s", email)
	}

	u := resp.Users.Nodes[0]
	return &destination.User{ID: u.ID, Email: u.Email, DisplayName: u.Name, Active: u.Active}, nil
}

// InviteUser sends an organization invite scoped to the workspace's team.
// The account id only exists once the invite is accepted, outside this run.
func (c *Client) InviteUser(ctx context.Context, ws *destination.Workspace, email string) error {
	query := `
	mutation OrganizationInviteCreate($input: OrganizationInviteCreateInput!) {
	  organizationInviteCreate(input: $input) { lastSyncId }
	}`
	vars := map[string]any{
		"input": map[string]any{
			"email":   email,
			"teamIds": []string{ws.ID},
		},
	}
	if _, err := c.rc.GraphQL(ctx, query, vars); err != nil {
		return fmt.Errorf("failed to invite user %s: %w", email, err)
	}
	return nil
}

// AddUserToWorkspace creates a team membership for an existing account.
func (c *Client) AddUserToWorkspace(ctx context.Context, ws *destination.Workspace, user *destination.User) error {
	query := `
	mutation TeamMembershipCreate($input: TeamMembershipCreateInput!) {
	  teamMembershipCreate(input: $input) { lastSyncId }
	}`
	vars := map[string]any{
		"input": map[string]any{
			"teamId": ws.ID,
			"userId": user.ID,
			"owner":  false,
		},
	}
	if _, err := c.rc.GraphQL(ctx, query, vars); err != nil {
		return fmt.Errorf("failed to add user %s to team: %w", user.Email, err)
	}
	return nil
}

// CreateLabel creates a team label, colored by whether it backs an epic.
func (c *Client) CreateLabel(ctx context.Context, ws *destination.Workspace, label *model.Label, isEpic bool) (*destination.Label, error) {
	query := `
	mutation IssueLabelCreate($input: IssueLabelCreateInput!) {
	  issueLabelCreate(input: $input) {
	    issueLabel { id name }
	  }
	}`
	color := "#4ea7fc"
	if isEpic {
		color = "#9370DB"
	}
	vars := map[string]any{
		"input": map[string]any{
			"name":   label.Name,
			"color":  color,
			"teamId": ws.ID,
		},
	}
	data, err := c.rc.GraphQL(ctx, query, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to create label %s: %w", label.Name, err)
	}

	var resp struct {
		IssueLabelCreate struct {
			IssueLabel struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"issueLabel"`
		} `json:"issueLabelCreate"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse label response: %w", err)
	}

	c.mu.Lock()
	if c.labels[ws.ID] == nil {
		c.labels[ws.ID] = make(map[string]string)
	}
	c.labels[ws.ID][resp.IssueLabelCreate.IssueLabel.Name] = resp.IssueLabelCreate.IssueLabel.ID
	c.mu.Unlock()

	return &destination.Label{ID: resp.IssueLabelCreate.IssueLabel.ID, Name: resp.IssueLabelCreate.IssueLabel.Name}, nil
}

// CreateGrouping creates a Linear project for an epic.
func (c *Client) CreateGrouping(ctx context.Context, ws *destination.Workspace, epic *model.Epic) (*destination.Grouping, error) {
	query := `
	mutation CreateProject($teamId: String!, $name: String!, $description: String) {
	  projectCreate(input: {teamIds: [$teamId], name: $name, description: $description}) {
	    success
	    project { id name }
	  }
	}`
	vars := map[string]any{
		"teamId":      ws.ID,
		"name":        sanitizeName(epic.Name),
		"description": epic.Description,
	}
	data, err := c.rc.GraphQL(ctx, query, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to create project for epic %s: %w", epic.Name, err)
	}

	var resp struct {
		ProjectCreate struct {
			Success bool `json:"success"`
			Project struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"project"`
		} `json:"projectCreate"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse project response: %w", err)
	}
	if !resp.ProjectCreate.Success {
		return nil, fmt.Errorf("project creation reported as unsuccessful")
	}
	return &destination.Grouping{ID: resp.ProjectCreate.Project.ID, Name: resp.ProjectCreate.Project.Name}, nil
}

// CreatePeriod creates a cycle for an iteration.
func (c *Client) CreatePeriod(ctx context.Context, ws *destination.Workspace, it *model.Iteration, projectName string) (*destination.Period, error) {
	query := `
	mutation CreateCycle($teamId: String!, $name: String!, $startDate: DateTime!, $endDate: DateTime!) {
	  cycleCreate(input: {teamId: $teamId, name: $name, startsAt: $startDate, endsAt: $endDate}) {
	    success
	    cycle { id number }
	  }
	}`
	vars := map[string]any{
		"teamId":    ws.ID,
		"name":      fmt.Sprintf("%s - Iteration %d", projectName, it.Number),
		"startDate": it.Start.UTC().Format(time.RFC3339),
		"endDate":   it.Finish.UTC().Format(time.RFC3339),
	}
	data, err := c.rc.GraphQL(ctx, query, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to create cycle for iteration %d: %w", it.Number, err)
	}

	var resp struct {
		CycleCreate struct {
			Success bool `json:"success"`
			Cycle   struct {
				ID     string `json:"id"`
				Number int    `json:"number"`
			} `json:"cycle"`
		} `json:"cycleCreate"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse cycle response: %w", err)
	}
	return &destination.Period{ID: resp.CycleCreate.Cycle.ID, Number: it.Number}, nil
}

// CreateWorkItem creates an issue. The workflow state is set at creation
// from the per-team state cache.
func (c *Client) CreateWorkItem(ctx context.Context, ws *destination.Workspace, spec destination.WorkItemSpec) (*destination.WorkItem, error) {
	query := `
	mutation CreateIssue($input: IssueCreateInput!) {
	  issueCreate(input: $input) {
	    success
	    issue { id identifier }
	  }
	}`

	input := map[string]any{
		"teamId":      ws.ID,
		"title":       sanitizeName(spec.Name),
		"description": spec.Description,
	}
	if id := c.stateID(ws.ID, spec.State); id != "" {
		input["stateId"] = id
	}
	if p := priority(spec.Priority); p > 0 {
		input["priority"] = p
	}
	if spec.Estimate != nil {
		input["estimate"] = *spec.Estimate
	}
	if spec.AssigneeID != "" {
		input["assigneeId"] = spec.AssigneeID
	}
	if spec.PeriodID != "" {
		input["cycleId"] = spec.PeriodID
	}
	if ids := c.labelIDs(ws.ID, spec.Labels); len(ids) > 0 {
		input["labelIds"] = ids
	}

	data, err := c.rc.GraphQL(ctx, query, map[string]any{"input": input})
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}

	var resp struct {
		IssueCreate struct {
			Success bool `json:"success"`
			Issue   struct {
				ID         string `json:"id"`
				Identifier string `json:"identifier"`
			} `json:"issue"`
		} `json:"issueCreate"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse issue response: %w", err)
	}
	if !resp.IssueCreate.Success {
		return nil, fmt.Errorf("issue creation reported as unsuccessful")
	}
	return &destination.WorkItem{ID: resp.IssueCreate.Issue.ID, Key: resp.IssueCreate.Issue.Identifier}, nil
}

func (c *Client) labelIDs(teamID string, names []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for _, name := range names {
		if id, ok := c.labels[teamID][name]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// CreateSubItem creates a sub-issue; completed tasks are moved to Done.
func (c *Client) CreateSubItem(ctx context.Context, ws *destination.Workspace, parent *destination.WorkItem, task *model.Task) (*destination.SubItem, error) {
	query := `
	mutation CreateIssue($input: IssueCreateInput!) {
	  issueCreate(input: $input) {
	    success
	    issue { id identifier }
	  }
	}`
	input := map[string]any{
		"teamId":   ws.ID,
		"title":    sanitizeName(task.Description),
		"parentId": parent.ID,
	}
	if id := c.stateID(ws.ID, model.StateUnstarted); id != "" {
		input["stateId"] = id
	}

	data, err := c.rc.GraphQL(ctx, query, map[string]any{"input": input})
	if err != nil {
		return nil, fmt.Errorf("failed to create sub-issue: %w", err)
	}

	var resp struct {
		IssueCreate struct {
			Success bool `json:"success"`
			Issue   struct {
				ID         string `json:"id"`
				Identifier string `json:"identifier"`
			} `json:"issue"`
		} `json:"issueCreate"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse sub-issue response: %w", err)
	}

	sub := &destination.SubItem{ID: resp.IssueCreate.Issue.ID, Key: resp.IssueCreate.Issue.Identifier}
	if task.Complete {
		if err := c.updateIssue(ctx, sub.ID, map[string]any{"stateId": c.stateID(ws.ID, model.StateAccepted)}); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

func (c *Client) updateIssue(ctx context.Context, issueID string, input map[string]any) error {
	query := `
	mutation UpdateIssue($id: String!, $input: IssueUpdateInput!) {
	  issueUpdate(id: $id, input: $input) {
	    success
	  }
	}`
	data, err := c.rc.GraphQL(ctx, query, map[string]any{"id": issueID, "input": input})
	if err != nil {
		return fmt.Errorf("failed to update issue: %w", err)
	}
	var resp struct {
		IssueUpdate struct {
			Success bool `json:"success"`
		} `json:"issueUpdate"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("failed to parse update response: %w", err)
	}
	if !resp.IssueUpdate.Success {
		return fmt.Errorf("issue update reported as unsuccessful")
	}
	return nil
}

// CreateComment posts a comment with the migration preamble and author line.
func (c *Client) CreateComment(ctx context.Context, item *destination.WorkItem, spec destination.CommentSpec) (*destination.Comment, error) {
	query := `
	mutation CreateComment($issueId: String!, $body: String!) {
	  commentCreate(input: {issueId: $issueId, body: $body}) {
	    success
	    comment { id }
	  }
	}`
	body := "[Migrated from Pivotal Tracker]\n\n" + spec.Text
	if spec.AuthorName != "" {
		body = fmt.Sprintf("Comment by %s:\n\n%s", spec.AuthorName, body)
	}

	data, err := c.rc.GraphQL(ctx, query, map[string]any{"issueId": item.ID, "body": body})
	if err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	var resp struct {
		CommentCreate struct {
			Success bool `json:"success"`
			Comment struct {
				ID string `json:"id"`
			} `json:"comment"`
		} `json:"commentCreate"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse comment response: %w", err)
	}
	return &destination.Comment{ID: resp.CommentCreate.Comment.ID}, nil
}

// AttachFile records an attachment reference on the issue. Linear stores a
// titled link; the byte content stays in the local content store.
func (c *Client) AttachFile(ctx context.Context, item *destination.WorkItem, filename string, content []byte) (*destination.Attachment, error) {
	query := `
	mutation CreateAttachment($issueId: String!, $url: String!, $title: String!) {
	  attachmentCreate(input: {issueId: $issueId, url: $url, title: $title}) {
	    success
	    attachment { id title }
	  }
	}`
	vars := map[string]any{
		"issueId": item.ID,
		"url":     "file://" + filename,
		"title":   filename,
	}
	data, err := c.rc.GraphQL(ctx, query, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to create attachment %s: %w", filename, err)
	}

	var resp struct {
		AttachmentCreate struct {
			Success    bool `json:"success"`
			Attachment struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"attachment"`
		} `json:"attachmentCreate"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse attachment response: %w", err)
	}
	return &destination.Attachment{ID: resp.AttachmentCreate.Attachment.ID, Filename: filename}, nil
}

// LinkToGrouping moves an issue into the project that shadows its epic.
func (c *Client) LinkToGrouping(ctx context.Context, item *destination.WorkItem, grouping *destination.Grouping) error {
	return c.updateIssue(ctx, item.ID, map[string]any{"projectId": grouping.ID})
}

// CreateRelation links blocker -> blocked with a "blocks" relation.
func (c *Client) CreateRelation(ctx context.Context, blocker, blocked *destination.WorkItem) (*destination.Relation, error) {
	query := `
	mutation CreateIssueRelation($issueId: String!, $relatedIssueId: String!, $type: IssueRelationType!) {
	  issueRelationCreate(input: {issueId: $issueId, relatedIssueId: $relatedIssueId, type: $type}) {
	    success
	    issueRelation { id }
	  }
	}`
	vars := map[string]any{
		"issueId":        blocker.ID,
		"relatedIssueId": blocked.ID,
		"type":           "blocks",
	}
	data, err := c.rc.GraphQL(ctx, query, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to create relation: %w", err)
	}

	var resp struct {
		IssueRelationCreate struct {
			Success       bool `json:"success"`
			IssueRelation struct {
				ID string `json:"id"`
			} `json:"issueRelation"`
		} `json:"issueRelationCreate"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse relation response: %w", err)
	}
	return &destination.Relation{ID: resp.IssueRelationCreate.IssueRelation.ID}, nil
}

// AddToPeriod is a no-op: cycles are assigned at issue creation.
func (c *Client) AddToPeriod(ctx context.Context, ws *destination.Workspace, period *destination.Period, items []*destination.WorkItem) error {
	return nil
}
