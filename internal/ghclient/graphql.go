package ghclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// graphqlPath is also what the limiter categorizes on, so every call here
// draws from the GraphQL quota, not core.
const graphqlPath = "graphql"

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLErrorItem struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type graphQLEnvelope struct {
	Data   json.RawMessage    `json:"data"`
	Errors []graphQLErrorItem `json:"errors"`
}

// GraphQLError is a non-transport failure reported in a GraphQL response
// body. These are domain errors and are not retried.
type GraphQLError struct {
	Items []graphQLErrorItem
}

func (e *GraphQLError) Error() string {
	msgs := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		if item.Type != "" {
			msgs = append(msgs, item.Type+": "+item.Message)
			continue
		}
		msgs = append(msgs, item.Message)
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// doGraphQL posts one query through the limiter and decodes data into out.
func (c *Client) doGraphQL(ctx context.Context, op, query string, vars map[string]any, out any) error {
	return c.do(ctx, op, graphqlPath, func() error {
		req, err := c.gh.NewRequest(http.MethodPost, graphqlPath, graphQLRequest{
			Query:     query,
			Variables: vars,
		})
		if err != nil {
			return fmt.Errorf("build graphql request: %w", err)
		}
		var envelope graphQLEnvelope
		if _, err := c.gh.Do(ctx, req, &envelope); err != nil {
			return err
		}
		if len(envelope.Errors) > 0 {
			return &GraphQLError{Items: envelope.Errors}
		}
		if out != nil {
			if err := json.Unmarshal(envelope.Data, out); err != nil {
				return fmt.Errorf("decode graphql response: %w", err)
			}
		}
		return nil
	})
}

// DiscussionCategory is a repository discussion category.
type DiscussionCategory struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RepositoryDiscussionInfo carries the node IDs needed to create discussions.
type RepositoryDiscussionInfo struct {
	RepositoryID string
	Categories   []DiscussionCategory
}

// DiscussionInfo looks up a repository's node ID and discussion categories.
func (c *Client) DiscussionInfo(ctx context.Context, owner, repo string) (*RepositoryDiscussionInfo, error) {
	const query = `
query($owner: String!, $name: String!) {
  repository(owner: $owner, name: $name) {
    id
    discussionCategories(first: 25) {
      nodes { id name }
    }
  }
}`
	var data struct {
		Repository struct {
			ID                   string `json:"id"`
			DiscussionCategories struct {
				Nodes []DiscussionCategory `json:"nodes"`
			} `json:"discussionCategories"`
		} `json:"repository"`
	}
	err := c.doGraphQL(ctx, "discussion_info", query, map[string]any{
		"owner": owner,
		"name":  repo,
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("discussion info %s/%s: %w", owner, repo, err)
	}
	return &RepositoryDiscussionInfo{
		RepositoryID: data.Repository.ID,
		Categories:   data.Repository.DiscussionCategories.Nodes,
	}, nil
}

// Discussion is a created discussion thread.
type Discussion struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	URL    string `json:"url"`
}

// CreateDiscussion opens a discussion in the given repository and category.
func (c *Client) CreateDiscussion(ctx context.Context, repositoryID, categoryID, title, body string) (*Discussion, error) {
	const mutation = `
mutation($repositoryId: ID!, $categoryId: ID!, $title: String!, $body: String!) {
  createDiscussion(input: {repositoryId: $repositoryId, categoryId: $categoryId, title: $title, body: $body}) {
    discussion { id number url }
  }
}`
	var data struct {
		CreateDiscussion struct {
			Discussion Discussion `json:"discussion"`
		} `json:"createDiscussion"`
	}
	err := c.doGraphQL(ctx, "create_discussion", mutation, map[string]any{
		"repositoryId": repositoryID,
		"categoryId":   categoryID,
		"title":        title,
		"body":         body,
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("create discussion %q: %w", title, err)
	}
	return &data.CreateDiscussion.Discussion, nil
}

// AddDiscussionComment replies to a discussion and returns the comment's
// node ID.
func (c *Client) AddDiscussionComment(ctx context.Context, discussionID, body string) (string, error) {
	const mutation = `
mutation($discussionId: ID!, $body: String!) {
  addDiscussionComment(input: {discussionId: $discussionId, body: $body}) {
    comment { id }
  }
}`
	var data struct {
		AddDiscussionComment struct {
			Comment struct {
				ID string `json:"id"`
			} `json:"comment"`
		} `json:"addDiscussionComment"`
	}
	err := c.doGraphQL(ctx, "add_discussion_comment", mutation, map[string]any{
		"discussionId": discussionID,
		"body":         body,
	}, &data)
	if err != nil {
		return "", fmt.Errorf("add discussion comment: %w", err)
	}
	return data.AddDiscussionComment.Comment.ID, nil
}

// MarkDiscussionAnswer marks a discussion comment as the accepted answer.
func (c *Client) MarkDiscussionAnswer(ctx context.Context, commentID string) error {
	const mutation = `
mutation($id: ID!) {
  markDiscussionCommentAsAnswer(input: {id: $id}) {
    discussion { id }
  }
}`
	err := c.doGraphQL(ctx, "mark_discussion_answer", mutation, map[string]any{
		"id": commentID,
	}, nil)
	if err != nil {
		return fmt.Errorf("mark discussion answer: %w", err)
	}
	return nil
}
