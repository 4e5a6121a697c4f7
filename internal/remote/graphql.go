package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// GraphQLRequest is one query or mutation with its variables.
type GraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

// GraphQL posts a request to the client's base endpoint and returns the data
// payload. GraphQL-level errors surface as *APIError so callers classify
// them like any other permanent failure.
func (c *Client) GraphQL(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	req := GraphQLRequest{Query: query, Variables: variables}
	raw, err := c.Do(ctx, http.MethodPost, "", req, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphQLError  `json:"errors,omitempty"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w (body: %s)", err, string(raw))
	}

	if len(resp.Errors) > 0 {
		msgs := make([]string, len(resp.Errors))
		for i, e := range resp.Errors {
			msgs[i] = e.Message
		}
		return nil, &APIError{StatusCode: http.StatusOK, Body: "GraphQL errors: " + strings.Join(msgs, "; ")}
	}

	return resp.Data, nil
}
