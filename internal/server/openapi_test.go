package server

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAPIDocumentValidates(t *testing.T) {
	doc, err := OpenAPIDocument("1.2.3")
	require.NoError(t, err)
	require.NoError(t, doc.Validate(context.Background()))

	assert.Equal(t, "1.2.3", doc.Info.Version)
	assert.Contains(t, doc.Components.Schemas, "Project")
	assert.Contains(t, doc.Components.Schemas, "Error")
}

func TestOpenAPIDocumentCoversEveryRoute(t *testing.T) {
	doc, err := OpenAPIDocument("dev")
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, rt := range apiRoutes {
		item := doc.Paths.Value(rt.path)
		require.NotNil(t, item, "path %s", rt.path)

		op := item.GetOperation(rt.method)
		require.NotNil(t, op, "operation %s", rt.pattern())

		assert.False(t, seen[op.OperationID], "duplicate operation id %s", op.OperationID)
		seen[op.OperationID] = true

		assert.NotNil(t, op.Responses.Value("default"), "%s has no error response", rt.pattern())
		if rt.request != "" {
			require.NotNil(t, op.RequestBody, "%s has no request body", rt.pattern())
		}

		user := op.Parameters.GetByInAndName("header", UserHeader)
		require.NotNil(t, user, "%s does not document %s", rt.pattern(), UserHeader)
		assert.Equal(t, !rt.anon, user.Required, rt.pattern())

		for _, m := range pathParam.FindAllStringSubmatch(rt.path, -1) {
			assert.NotNil(t, op.Parameters.GetByInAndName("path", m[1]), "%s misses path parameter %s", rt.pattern(), m[1])
		}
	}
	assert.Len(t, seen, len(apiRoutes))
}

func TestOperationID(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/api/projects", "getProjects"},
		{http.MethodGet, "/api/projects/{id}", "getProjectsId"},
		{http.MethodPatch, "/api/projects/{id}/members/{user}", "patchProjectsIdMembersUser"},
		{http.MethodPost, "/api/invitations/{token}/accept", "postInvitationsTokenAccept"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, operationID(route{method: tt.method, path: tt.path}))
		})
	}
}

func TestOpenAPIStatusCodes(t *testing.T) {
	doc, err := OpenAPIDocument("dev")
	require.NoError(t, err)

	create := doc.Paths.Value("/api/projects").GetOperation(http.MethodPost)
	assert.NotNil(t, create.Responses.Value("201"))

	del := doc.Paths.Value("/api/projects/{id}").GetOperation(http.MethodDelete)
	assert.NotNil(t, del.Responses.Value("204"))

	get := doc.Paths.Value("/api/projects/{id}").GetOperation(http.MethodGet)
	ok := get.Responses.Value("200")
	require.NotNil(t, ok)
	schema := ok.Value.Content.Get("application/json").Schema
	assert.True(t, strings.HasSuffix(schema.Ref, "/Project"))
}
