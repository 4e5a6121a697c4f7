package linear

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyport/storyport/internal/destination"
	"github.com/storyport/storyport/internal/model"
	"github.com/storyport/storyport/internal/remote"
)

// graphqlStub routes mutations and queries by substring and records the
// variables of every request.
type graphqlStub struct {
	t        *testing.T
	requests []remote.GraphQLRequest
}

func (g *graphqlStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req remote.GraphQLRequest
		require.NoError(g.t, json.NewDecoder(r.Body).Decode(&req))
		g.requests = append(g.requests, req)

		var data string
		switch {
		case strings.Contains(req.Query, "teamCreate"):
			data = `{"teamCreate": {"success": true, "team": {"id": "team-1", "name": "Apollo", "key": "APOLL"}}}`
		case strings.Contains(req.Query, "states"):
			data = `{"team": {"states": {"nodes": [
				{"id": "st-todo", "name": "Todo", "type": "unstarted"},
				{"id": "st-prog", "name": "In Progress", "type": "started"},
				{"id": "st-done", "name": "Done", "type": "completed"}
			]}}}`
		case strings.Contains(req.Query, "issueLabelCreate"):
			input := req.Variables["input"].(map[string]any)
			data = fmt.Sprintf(`{"issueLabelCreate": {"issueLabel": {"id": "lbl-1", "name": %q}}}`, input["name"])
		case strings.Contains(req.Query, "issueCreate"):
			data = `{"issueCreate": {"success": true, "issue": {"id": "iss-1", "identifier": "APOLL-1"}}}`
		case strings.Contains(req.Query, "issueUpdate"):
			data = `{"issueUpdate": {"success": true}}`
		case strings.Contains(req.Query, "commentCreate"):
			data = `{"commentCreate": {"success": true, "comment": {"id": "cmt-1"}}}`
		default:
			g.t.Fatalf("unexpected query: %s", req.Query)
		}
		fmt.Fprintf(w, `{"data": %s}`, data)
	}
}

// variables returns the input variables of the n-th request matching the
// query substring.
func (g *graphqlStub) input(substr string) map[string]any {
	for _, req := range g.requests {
		if strings.Contains(req.Query, substr) {
			if in, ok := req.Variables["input"].(map[string]any); ok {
				return in
			}
			return req.Variables
		}
	}
	return nil
}

func newTestClient(t *testing.T) (*Client, *graphqlStub) {
	stub := &graphqlStub{t: t}
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	return New(remote.New(srv.URL)), stub
}

func TestCreateWorkspacePrimesStateCache(t *testing.T) {
	c, stub := newTestClient(t)

	ws, err := c.CreateWorkspace(context.Background(), &model.Project{ID: 1, Name: "Apollo"})
	require.NoError(t, err)
	assert.Equal(t, "team-1", ws.ID)
	assert.Equal(t, "APOLL", ws.Key)

	// teamCreate then the state query.
	require.Len(t, stub.requests, 2)
	assert.Equal(t, "st-prog", c.stateID(ws.ID, model.StateStarted))
	assert.Equal(t, "st-todo", c.stateID(ws.ID, model.StateUnstarted))
}

func TestCreateWorkItemResolvesStateAndLabels(t *testing.T) {
	c, stub := newTestClient(t)
	ws, err := c.CreateWorkspace(context.Background(), &model.Project{ID: 1, Name: "Apollo"})
	require.NoError(t, err)

	_, err = c.CreateLabel(context.Background(), ws, &model.Label{ID: 5, Name: "payments"}, false)
	require.NoError(t, err)

	estimate := 3.0
	item, err := c.CreateWorkItem(context.Background(), ws, destination.WorkItemSpec{
		Name:     "Checkout flow",
		State:    model.StateStarted,
		Priority: "p1",
		Estimate: &estimate,
		Labels:   []string{"payments", "unknown"},
	})
	require.NoError(t, err)
	assert.Equal(t, "APOLL-1", item.Key)

	input := stub.input("issueCreate")
	require.NotNil(t, input)
	assert.Equal(t, "st-prog", input["stateId"])
	assert.Equal(t, float64(2), input["priority"])
	assert.Equal(t, 3.0, input["estimate"])
	assert.Equal(t, []any{"lbl-1"}, input["labelIds"], "unknown label names are dropped")
}

func TestCreateCommentBodyConvention(t *testing.T) {
	c, stub := newTestClient(t)

	_, err := c.CreateComment(context.Background(), &destination.WorkItem{ID: "iss-1"}, destination.CommentSpec{
		Text:       "looks good",
		AuthorName: "Ada",
	})
	require.NoError(t, err)

	vars := stub.input("commentCreate")
	require.NotNil(t, vars)
	body := vars["body"].(string)
	assert.True(t, strings.HasPrefix(body, "Comment by Ada:"), "body: %s", body)
	assert.Contains(t, body, "[Migrated from Pivotal Tracker]")
	assert.Contains(t, body, "looks good")
}

func TestCreateSubItemCompleteTransitionsDone(t *testing.T) {
	c, stub := newTestClient(t)
	ws, err := c.CreateWorkspace(context.Background(), &model.Project{ID: 1, Name: "Apollo"})
	require.NoError(t, err)

	_, err = c.CreateSubItem(context.Background(), ws, &destination.WorkItem{ID: "parent-1"},
		&model.Task{ID: 7, Description: "wire the API", Complete: true})
	require.NoError(t, err)

	update := stub.input("issueUpdate")
	require.NotNil(t, update)
	assert.Equal(t, "st-done", update["stateId"])
}
