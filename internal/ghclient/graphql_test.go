package ghclient

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDiscussion(t *testing.T) {
	tc := newTestClient(t)

	var got graphQLRequest
	tc.mux.HandleFunc("POST /graphql", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(t, w, http.StatusOK, `{"data": {"createDiscussion": {"discussion":
			{"id": "D_1", "number": 12, "url": "https://github.com/octocat/sandbox/discussions/12"}}}}`)
	})

	d, err := tc.client.CreateDiscussion(context.Background(), "R_1", "DIC_1", "How do I?", "asking for a friend")
	require.NoError(t, err)
	assert.Equal(t, "D_1", d.ID)
	assert.Equal(t, 12, d.Number)

	assert.Contains(t, got.Query, "createDiscussion")
	assert.Equal(t, "R_1", got.Variables["repositoryId"])
	assert.Equal(t, "How do I?", got.Variables["title"])
}

func TestDiscussionInfo(t *testing.T) {
	tc := newTestClient(t)

	tc.mux.HandleFunc("POST /graphql", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, `{"data": {"repository": {"id": "R_1",
			"discussionCategories": {"nodes": [
				{"id": "DIC_1", "name": "Q&A"},
				{"id": "DIC_2", "name": "General"}
			]}}}}`)
	})

	info, err := tc.client.DiscussionInfo(context.Background(), "octocat", "sandbox")
	require.NoError(t, err)
	assert.Equal(t, "R_1", info.RepositoryID)
	require.Len(t, info.Categories, 2)
	assert.Equal(t, "Q&A", info.Categories[0].Name)
}

func TestAddDiscussionCommentAndMarkAnswer(t *testing.T) {
	tc := newTestClient(t)

	var queries []string
	tc.mux.HandleFunc("POST /graphql", func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		queries = append(queries, req.Query)
		switch len(queries) {
		case 1:
			writeJSON(t, w, http.StatusOK, `{"data": {"addDiscussionComment": {"comment": {"id": "DC_1"}}}}`)
		default:
			writeJSON(t, w, http.StatusOK, `{"data": {"markDiscussionCommentAsAnswer": {"discussion": {"id": "D_1"}}}}`)
		}
	})

	commentID, err := tc.client.AddDiscussionComment(context.Background(), "D_1", "the answer")
	require.NoError(t, err)
	assert.Equal(t, "DC_1", commentID)

	require.NoError(t, tc.client.MarkDiscussionAnswer(context.Background(), commentID))
	require.Len(t, queries, 2)
	assert.Contains(t, queries[1], "markDiscussionCommentAsAnswer")
}

func TestGraphQLErrorNotRetried(t *testing.T) {
	tc := newTestClient(t)

	var hits int
	tc.mux.HandleFunc("POST /graphql", func(w http.ResponseWriter, r *http.Request) {
		hits++
		writeJSON(t, w, http.StatusOK, `{"data": null, "errors": [
			{"type": "NOT_FOUND", "message": "Could not resolve to a Repository"}]}`)
	})

	_, err := tc.client.DiscussionInfo(context.Background(), "octocat", "gone")
	require.Error(t, err)
	var gqlErr *GraphQLError
	require.ErrorAs(t, err, &gqlErr)
	assert.Contains(t, gqlErr.Error(), "NOT_FOUND")
	assert.Equal(t, 1, hits)
	assert.Empty(t, tc.sleeper.waits)
}
