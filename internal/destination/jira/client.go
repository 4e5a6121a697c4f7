// Package jira implements the REST destination. Source projects become Jira
// projects with a scrum board, epics become Epic issues, iterations become
// sprints, stories become issues and tasks become sub-tasks.
package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/storyport/storyport/internal/destination"
	"github.com/storyport/storyport/internal/model"
	"github.com/storyport/storyport/internal/remote"
)

// sprintBatchSize is the agile API's cap on issues moved per request.
const sprintBatchSize = 45

// Config carries the account-level settings the client cannot discover.
type Config struct {
	// AccountID is the migrating operator; it is granted the administrator
	// role on each created project so reporter fields can be set.
	AccountID string
	// StoryPointsField is the custom field id holding estimates.
	StoryPointsField string
	// WorkflowSchemeID is the shared migration workflow scheme assigned to
	// every created project.
	WorkflowSchemeID string
}

// Client drives one Jira site through the bounded API client.
type Client struct {
	rc  *remote.Client
	cfg Config
	log *zap.Logger
}

// New wraps a bounded client pointed at the Jira site root.
func New(rc *remote.Client, cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{rc: rc, cfg: cfg, log: log}
}

func (c *Client) Name() string { return "jira" }

func apiPath(parts ...string) string {
	return "rest/api/3/" + strings.Join(parts, "/")
}

func agilePath(parts ...string) string {
	return "rest/agile/1.0/" + strings.Join(parts, "/")
}

// Setup verifies credentials. The shared workflow scheme must already exist
// (site administration is outside a migration run); its id comes from
// configuration.
func (c *Client) Setup(ctx context.Context) error {
	if _, err := c.rc.Do(ctx, http.MethodGet, apiPath("myself"), nil, nil); err != nil {
		return fmt.Errorf("failed to verify Jira credentials: %w", err)
	}
	if c.cfg.WorkflowSchemeID == "" {
		return fmt.Errorf("workflow scheme id is not configured")
	}
	return nil
}

// CreateWorkspace creates the project, assigns the shared workflow scheme,
// and sets up a scrum board. Board failures are logged, not fatal: sprints
// simply cannot be migrated without one.
func (c *Client) CreateWorkspace(ctx context.Context, project *model.Project) (*destination.Workspace, error) {
	body := map[string]any{
		"key":            projectKey(project.Name),
		"name":           project.Name,
		"projectTypeKey": "software",
		"description":    project.Description,
		"assigneeType":   "UNASSIGNED",
		"leadAccountId":  c.cfg.AccountID,
	}
	raw, err := c.rc.Do(ctx, http.MethodPost, apiPath("project"), body, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	var created struct {
		ID  json.Number `json:"id"`
		Key string      `json:"key"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, fmt.Errorf("failed to parse project response: %w", err)
	}

	scheme := map[string]any{
		"workflowSchemeId": c.cfg.WorkflowSchemeID,
		"projectId":        created.ID.String(),
	}
	if _, err := c.rc.Do(ctx, http.MethodPut, apiPath("workflowscheme", "project"), scheme, nil); err != nil {
		return nil, fmt.Errorf("failed to assign workflow scheme: %w", err)
	}

	ws := &destination.Workspace{ID: created.ID.String(), Key: created.Key, Name: project.Name}

	boardID, err := c.createBoard(ctx, created.Key)
	if err != nil {
		c.log.Warn("failed to create board, sprints will be skipped",
			zap.String("project", created.Key), zap.Error(err))
	} else {
		ws.BoardID = boardID
	}

	if err := c.grantAdminRole(ctx, created.Key); err != nil {
		return nil, err
	}
	return ws, nil
}

func (c *Client) createBoard(ctx context.Context, projectKey string) (string, error) {
	filterBody := map[string]any{
		"name":      fmt.Sprintf("All Issues in %s", projectKey),
		"jql":       fmt.Sprintf("project = %s", projectKey),
		"favourite": true,
	}
	raw, err := c.rc.Do(ctx, http.MethodPost, apiPath("filter"), filterBody, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create filter: %w", err)
	}
	var filter struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(raw, &filter); err != nil {
		return "", fmt.Errorf("failed to parse filter response: %w", err)
	}

	boardBody := map[string]any{
		"name":     fmt.Sprintf("%s Agile Board", projectKey),
		"type":     "scrum",
		"location": map[string]any{"type": "project", "projectKeyOrId": projectKey},
		"filterId": filter.ID.String(),
	}
	raw, err = c.rc.Do(ctx, http.MethodPost, agilePath("board"), boardBody, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create board: %w", err)
	}
	var board struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(raw, &board); err != nil {
		return "", fmt.Errorf("failed to parse board response: %w", err)
	}
	return board.ID.String(), nil
}

// grantAdminRole adds the operator to the project's administrator role so
// reporter fields can be written on created issues.
func (c *Client) grantAdminRole(ctx context.Context, projectKey string) error {
	raw, err := c.rc.Do(ctx, http.MethodGet, apiPath("project", projectKey, "role"), nil, nil)
	if err != nil {
		return fmt.Errorf("failed to list project roles: %w", err)
	}
	var roles map[string]string
	if err := json.Unmarshal(raw, &roles); err != nil {
		return fmt.Errorf("failed to parse project roles: %w", err)
	}
	roleURL, ok := roles["Administrators"]
	if !ok {
		return fmt.Errorf("project %s has no Administrators role", projectKey)
	}
	parts := strings.Split(roleURL, "/")
	roleID := parts[len(parts)-1]

	body := map[string]any{"user": []string{c.cfg.AccountID}}
	if _, err := c.rc.Do(ctx, http.MethodPost, apiPath("project", projectKey, "role", roleID), body, nil); err != nil {
		return fmt.Errorf("failed to grant administrator role: %w", err)
	}
	return nil
}

// FindUser matches a Jira account by email via the paged user search.
func (c *Client) FindUser(ctx context.Context, email string) (*destination.User, error) {
	q := url.Values{}
	q.Set("query", email)
	pages, err := c.rc.GetPaged(ctx, apiPath("user", "search"), q, remote.DefaultPageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to search user %s: %w", email, err)
	}

	var matches []*destination.User
	for _, raw := range pages {
		var u struct {
			AccountID    string `json:"accountId"`
			EmailAddress string `json:"emailAddress"`
			DisplayName  string `json:"displayName"`
			Active       bool   `json:"active"`
		}
		if err := json.Unmarshal(raw, &u); err != nil {
			return nil, fmt.Errorf("failed to parse user search result: %w", err)
		}
		matches = append(matches, &destination.User{
			ID:          u.AccountID,
			Email:       u.EmailAddress,
			DisplayName: u.DisplayName,
			Active:      u.Active,
		})
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("found multiple users with email %s", email)
	}
}

// InviteUser creates an account placeholder; the person gains access when
// the invitation email is accepted.
func (c *Client) InviteUser(ctx context.Context, ws *destination.Workspace, email string) error {
	body := map[string]any{
		"emailAddress": email,
		"products":     []string{"jira-software"},
	}
	if _, err := c.rc.Do(ctx, http.MethodPost, apiPath("user"), body, nil); err != nil {
		return fmt.Errorf("failed to create user %s: %w", email, err)
	}
	return nil
}

// AddUserToWorkspace is a no-op: Jira project access follows from site
// membership, not a per-project call.
func (c *Client) AddUserToWorkspace(ctx context.Context, ws *destination.Workspace, user *destination.User) error {
	return nil
}

// CreateLabel is local-only: Jira labels are free-form strings applied on
// issues, so the shadow entity just records the rewritten name.
func (c *Client) CreateLabel(ctx context.Context, ws *destination.Workspace, label *model.Label, isEpic bool) (*destination.Label, error) {
	name := strings.ReplaceAll(label.Name, " ", "_")
	return &destination.Label{ID: name, Name: name}, nil
}

// CreateGrouping creates an Epic issue.
func (c *Client) CreateGrouping(ctx context.Context, ws *destination.Workspace, epic *model.Epic) (*destination.Grouping, error) {
	body := map[string]any{
		"fields": map[string]any{
			"project":     map[string]any{"key": ws.Key},
			"summary":     epic.Name,
			"description": adfDoc(epic.Description),
			"issuetype":   map[string]any{"name": "Epic"},
		},
	}
	raw, err := c.rc.Do(ctx, http.MethodPost, apiPath("issue"), body, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create epic %s: %w", epic.Name, err)
	}
	var created struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, fmt.Errorf("failed to parse epic response: %w", err)
	}
	return &destination.Grouping{ID: created.ID, Key: created.Key, Name: epic.Name}, nil
}

// CreatePeriod creates a sprint on the workspace board.
func (c *Client) CreatePeriod(ctx context.Context, ws *destination.Workspace, it *model.Iteration, projectName string) (*destination.Period, error) {
	if ws.BoardID == "" {
		return nil, fmt.Errorf("workspace %s has no board, cannot create sprint", ws.Key)
	}
	body := map[string]any{
		"name":          fmt.Sprintf("Sprint %d", it.Number),
		"startDate":     it.Start.Format("2006-01-02T15:04:05.000-0700"),
		"endDate":       it.Finish.Format("2006-01-02T15:04:05.000-0700"),
		"originBoardId": ws.BoardID,
		"goal":          fmt.Sprintf("Iteration %d from Pivotal Tracker", it.Number),
	}
	raw, err := c.rc.Do(ctx, http.MethodPost, agilePath("sprint"), body, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create sprint %d: %w", it.Number, err)
	}
	var created struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, fmt.Errorf("failed to parse sprint response: %w", err)
	}
	return &destination.Period{ID: created.ID.String(), Number: it.Number}, nil
}

// CreateWorkItem creates an issue, writes story points when estimated, and
// transitions the issue out of the default status when needed. The sprint
// is attached later via AddToPeriod.
func (c *Client) CreateWorkItem(ctx context.Context, ws *destination.Workspace, spec destination.WorkItemSpec) (*destination.WorkItem, error) {
	fields := map[string]any{
		"project":     map[string]any{"key": ws.Key},
		"summary":     spec.Name,
		"description": adfDoc(spec.Description),
		"issuetype":   map[string]any{"name": issueType(spec.Type)},
		"labels":      issueLabels(spec.Labels),
		"priority":    map[string]any{"id": priorityID(spec.Priority)},
	}
	if spec.AssigneeID != "" {
		fields["assignee"] = map[string]any{"id": spec.AssigneeID}
	}
	if spec.ReporterID != "" {
		fields["reporter"] = map[string]any{"id": spec.ReporterID}
	}

	raw, err := c.rc.Do(ctx, http.MethodPost, apiPath("issue"), map[string]any{"fields": fields}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}
	var created struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, fmt.Errorf("failed to parse issue response: %w", err)
	}
	item := &destination.WorkItem{ID: created.ID, Key: created.Key}

	if spec.Estimate != nil && c.cfg.StoryPointsField != "" {
		update := map[string]any{"fields": map[string]any{c.cfg.StoryPointsField: *spec.Estimate}}
		if _, err := c.rc.Do(ctx, http.MethodPut, apiPath("issue", item.Key), update, nil); err != nil {
			return nil, fmt.Errorf("failed to set story points on %s: %w", item.Key, err)
		}
	}

	if spec.State != model.StateUnstarted {
		if err := c.transition(ctx, item.Key, statusName(spec.State)); err != nil {
			return nil, err
		}
	}
	return item, nil
}

// transition looks up the available transitions and applies the one landing
// on the wanted status.
func (c *Client) transition(ctx context.Context, issueKey, status string) error {
	raw, err := c.rc.Do(ctx, http.MethodGet, apiPath("issue", issueKey, "transitions"), nil, nil)
	if err != nil {
		return fmt.Errorf("failed to list transitions for %s: %w", issueKey, err)
	}
	var resp struct {
		Transitions []struct {
			ID string `json:"id"`
			To struct {
				Name string `json:"name"`
			} `json:"to"`
		} `json:"transitions"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("failed to parse transitions: %w", err)
	}

	var transitionID string
	for _, t := range resp.Transitions {
		if strings.EqualFold(t.To.Name, status) {
			transitionID = t.ID
			break
		}
	}
	if transitionID == "" {
		return fmt.Errorf("transition to status %q not found on %s", status, issueKey)
	}

	body := map[string]any{"transition": map[string]any{"id": transitionID}}
	if _, err := c.rc.Do(ctx, http.MethodPost, apiPath("issue", issueKey, "transitions"), body, nil); err != nil {
		return fmt.Errorf("failed to transition %s to %s: %w", issueKey, status, err)
	}
	return nil
}

// CreateSubItem creates a sub-task; completed tasks are transitioned done.
func (c *Client) CreateSubItem(ctx context.Context, ws *destination.Workspace, parent *destination.WorkItem, task *model.Task) (*destination.SubItem, error) {
	body := map[string]any{
		"fields": map[string]any{
			"project":     map[string]any{"key": ws.Key},
			"parent":      map[string]any{"key": parent.Key},
			"summary":     task.Description,
			"description": adfDoc(""),
			"issuetype":   map[string]any{"name": "Sub-task"},
		},
	}
	raw, err := c.rc.Do(ctx, http.MethodPost, apiPath("issue"), body, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create sub-task: %w", err)
	}
	var created struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, fmt.Errorf("failed to parse sub-task response: %w", err)
	}

	if task.Complete {
		if err := c.transition(ctx, created.Key, statusName(model.StateFinished)); err != nil {
			return nil, err
		}
	}
	return &destination.SubItem{ID: created.ID, Key: created.Key}, nil
}

// CreateComment posts a v2 comment; attachment references use Jira's
// !filename! embed syntax.
func (c *Client) CreateComment(ctx context.Context, item *destination.WorkItem, spec destination.CommentSpec) (*destination.Comment, error) {
	body := "[Migrated from Pivotal Tracker]\n\n" + spec.Text
	if spec.AuthorName != "" {
		body = fmt.Sprintf("Comment by %s:\n\n%s", spec.AuthorName, body)
	}
	if len(spec.Attachments) > 0 {
		body += "\n\nAttachments:\n"
		for _, a := range spec.Attachments {
			body += fmt.Sprintf("!%s! ", a.Filename)
		}
	}

	raw, err := c.rc.Do(ctx, http.MethodPost, "rest/api/2/issue/"+item.Key+"/comment", map[string]any{"body": body}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}
	var created struct {
		ID json.Number `json:"id"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, fmt.Errorf("failed to parse comment response: %w", err)
	}
	return &destination.Comment{ID: created.ID.String()}, nil
}

// AttachFile uploads the blob to the issue.
func (c *Client) AttachFile(ctx context.Context, item *destination.WorkItem, filename string, content []byte) (*destination.Attachment, error) {
	headers := map[string]string{"X-Atlassian-Token": "no-check"}
	raw, err := c.rc.Upload(ctx, apiPath("issue", item.Key, "attachments"), filename, content, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to upload attachment %s: %w", filename, err)
	}

	// The attachments endpoint answers with a one-element list.
	var created []struct {
		ID       json.Number `json:"id"`
		Filename string      `json:"filename"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, fmt.Errorf("failed to parse attachment response: %w", err)
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("attachment upload returned no attachment data")
	}
	return &destination.Attachment{ID: created[0].ID.String(), Filename: created[0].Filename}, nil
}

// LinkToGrouping sets the epic as the issue's parent.
func (c *Client) LinkToGrouping(ctx context.Context, item *destination.WorkItem, grouping *destination.Grouping) error {
	body := map[string]any{"fields": map[string]any{"parent": map[string]any{"key": grouping.Key}}}
	if _, err := c.rc.Do(ctx, http.MethodPut, apiPath("issue", item.Key), body, nil); err != nil {
		return fmt.Errorf("failed to link %s to epic %s: %w", item.Key, grouping.Key, err)
	}
	return nil
}

// CreateRelation creates a Blocks issue link.
func (c *Client) CreateRelation(ctx context.Context, blocker, blocked *destination.WorkItem) (*destination.Relation, error) {
	body := map[string]any{
		"type":         map[string]any{"name": "Blocks"},
		"inwardIssue":  map[string]any{"key": blocker.Key},
		"outwardIssue": map[string]any{"key": blocked.Key},
	}
	if _, err := c.rc.Do(ctx, http.MethodPost, apiPath("issueLink"), body, nil); err != nil {
		return nil, fmt.Errorf("failed to create issue link: %w", err)
	}
	// The issueLink endpoint returns 201 with no body.
	return &destination.Relation{}, nil
}

// AddToPeriod moves work items into the sprint in api-sized batches.
func (c *Client) AddToPeriod(ctx context.Context, ws *destination.Workspace, period *destination.Period, items []*destination.WorkItem) error {
	for i := 0; i < len(items); i += sprintBatchSize {
		end := i + sprintBatchSize
		if end > len(items) {
			end = len(items)
		}
		keys := make([]string, 0, end-i)
		for _, it := range items[i:end] {
			keys = append(keys, it.Key)
		}
		body := map[string]any{"issues": keys}
		if _, err := c.rc.Do(ctx, http.MethodPost, agilePath("sprint", period.ID, "issue"), body, nil); err != nil {
			return fmt.Errorf("failed to move issues into sprint %s: %w", period.ID, err)
		}
	}
	return nil
}
