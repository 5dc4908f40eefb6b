package server

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/felixgeelhaar/flowboard/internal/authz"
	"github.com/felixgeelhaar/flowboard/internal/domain"
)

var pathParam = regexp.MustCompile(`\{([a-z]+)\}`)

func roleSchema() *openapi3.Schema {
	values := make([]any, 0, 4)
	for _, r := range authz.AllRoles() {
		values = append(values, string(r))
	}
	return openapi3.NewStringSchema().WithEnum(values...)
}

func statusSchema() *openapi3.Schema {
	return openapi3.NewStringSchema().WithEnum(
		string(domain.StatusNotStarted),
		string(domain.StatusInProgress),
		string(domain.StatusCompleted),
		string(domain.StatusBlocked),
	)
}

func componentSchemas() openapi3.Schemas {
	point := openapi3.NewObjectSchema().
		WithProperty("x", openapi3.NewFloat64Schema()).
		WithProperty("y", openapi3.NewFloat64Schema())

	task := openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewStringSchema()).
		WithProperty("title", openapi3.NewStringSchema()).
		WithProperty("description", openapi3.NewStringSchema()).
		WithProperty("status", statusSchema()).
		WithProperty("position", point).
		WithProperty("nextTaskIds", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())).
		WithProperty("extendedDetails", openapi3.NewObjectSchema().WithAnyAdditionalProperties())
	task.Required = []string{"id", "title", "status", "position", "nextTaskIds"}

	tasks := openapi3.NewArraySchema().WithItems(task)
	date := openapi3.NewStringSchema().WithFormat("date")

	project := openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewStringSchema()).
		WithProperty("title", openapi3.NewStringSchema()).
		WithProperty("goal", openapi3.NewStringSchema()).
		WithProperty("targetDate", date).
		WithProperty("tasks", tasks).
		WithProperty("ganttData", openapi3.NewObjectSchema().WithAnyAdditionalProperties()).
		WithProperty("isPublic", openapi3.NewBoolSchema()).
		WithProperty("ownerId", openapi3.NewStringSchema()).
		WithProperty("createdAt", openapi3.NewDateTimeSchema()).
		WithProperty("updatedAt", openapi3.NewDateTimeSchema())

	newProject := openapi3.NewObjectSchema().
		WithProperty("title", openapi3.NewStringSchema().WithMinLength(1)).
		WithProperty("goal", openapi3.NewStringSchema()).
		WithProperty("targetDate", date).
		WithProperty("tasks", tasks).
		WithProperty("ganttData", openapi3.NewObjectSchema().WithAnyAdditionalProperties())
	newProject.Required = []string{"title"}

	patch := openapi3.NewObjectSchema().
		WithProperty("title", openapi3.NewStringSchema().WithMinLength(1)).
		WithProperty("goal", openapi3.NewStringSchema()).
		WithProperty("targetDate", date).
		WithProperty("tasks", tasks).
		WithProperty("ganttData", openapi3.NewObjectSchema().WithAnyAdditionalProperties())

	member := openapi3.NewObjectSchema().
		WithProperty("projectId", openapi3.NewStringSchema()).
		WithProperty("userId", openapi3.NewStringSchema()).
		WithProperty("role", roleSchema()).
		WithProperty("joinedAt", openapi3.NewDateTimeSchema())

	invitation := openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewStringSchema()).
		WithProperty("projectId", openapi3.NewStringSchema()).
		WithProperty("email", openapi3.NewStringSchema()).
		WithProperty("role", roleSchema()).
		WithProperty("invitedBy", openapi3.NewStringSchema()).
		WithProperty("token", openapi3.NewStringSchema()).
		WithProperty("createdAt", openapi3.NewDateTimeSchema()).
		WithProperty("expiresAt", openapi3.NewDateTimeSchema()).
		WithProperty("acceptedAt", openapi3.NewDateTimeSchema())

	invite := openapi3.NewObjectSchema().
		WithProperty("email", openapi3.NewStringSchema()).
		WithProperty("role", roleSchema())
	invite.Required = []string{"email", "role"}

	roleRequest := openapi3.NewObjectSchema().WithProperty("role", roleSchema())
	roleRequest.Required = []string{"role"}

	role := openapi3.NewObjectSchema().
		WithProperty("role", roleSchema()).
		WithProperty("member", openapi3.NewBoolSchema()).
		WithProperty("canView", openapi3.NewBoolSchema()).
		WithProperty("canEdit", openapi3.NewBoolSchema()).
		WithProperty("canManage", openapi3.NewBoolSchema())

	errorBody := openapi3.NewObjectSchema().WithProperty("error", openapi3.NewObjectSchema().
		WithProperty("code", openapi3.NewStringSchema()).
		WithProperty("message", openapi3.NewStringSchema()).
		WithProperty("suggestions", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())))

	return openapi3.Schemas{
		"Project":        openapi3.NewSchemaRef("", project),
		"ProjectList":    openapi3.NewSchemaRef("", openapi3.NewArraySchema().WithItems(project)),
		"NewProject":     openapi3.NewSchemaRef("", newProject),
		"ProjectPatch":   openapi3.NewSchemaRef("", patch),
		"Visibility":     openapi3.NewSchemaRef("", openapi3.NewObjectSchema().WithProperty("isPublic", openapi3.NewBoolSchema())),
		"Role":           openapi3.NewSchemaRef("", role),
		"Member":         openapi3.NewSchemaRef("", member),
		"MemberList":     openapi3.NewSchemaRef("", openapi3.NewArraySchema().WithItems(member)),
		"Invitation":     openapi3.NewSchemaRef("", invitation),
		"InvitationList": openapi3.NewSchemaRef("", openapi3.NewArraySchema().WithItems(invitation)),
		"InviteRequest":  openapi3.NewSchemaRef("", invite),
		"RoleRequest":    openapi3.NewSchemaRef("", roleRequest),
		"Error":          openapi3.NewSchemaRef("", errorBody),
	}
}

// schemaRef points at a component while carrying its value so the document
// validates without a loader pass.
func schemaRef(schemas openapi3.Schemas, name string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Ref: "#/components/schemas/" + name, Value: schemas[name].Value}
}

func operationID(rt route) string {
	parts := []string{strings.ToLower(rt.method)}
	for _, seg := range strings.Split(strings.Trim(rt.path, "/"), "/") {
		if seg == "api" {
			continue
		}
		seg = strings.Trim(seg, "{}")
		parts = append(parts, strings.ToUpper(seg[:1])+seg[1:])
	}
	return strings.Join(parts, "")
}

func operation(rt route, schemas openapi3.Schemas) *openapi3.Operation {
	op := openapi3.NewOperation()
	op.OperationID = operationID(rt)
	op.Summary = rt.summary

	for _, m := range pathParam.FindAllStringSubmatch(rt.path, -1) {
		p := openapi3.NewPathParameter(m[1]).WithSchema(openapi3.NewStringSchema())
		op.Parameters = append(op.Parameters, &openapi3.ParameterRef{Value: p})
	}
	user := openapi3.NewHeaderParameter(UserHeader).WithSchema(openapi3.NewStringSchema())
	user.Required = !rt.anon
	user.Description = "Acting user id"
	op.Parameters = append(op.Parameters, &openapi3.ParameterRef{Value: user})

	if rt.request != "" {
		body := openapi3.NewRequestBody().WithRequired(true).WithJSONSchemaRef(schemaRef(schemas, rt.request))
		op.RequestBody = &openapi3.RequestBodyRef{Value: body}
	}

	status := rt.status
	if status == 0 {
		status = 200
	}
	ok := openapi3.NewResponse().WithDescription(rt.summary)
	if rt.response != "" {
		ok = ok.WithJSONSchemaRef(schemaRef(schemas, rt.response))
	}
	failure := openapi3.NewResponse().WithDescription("Coded error").WithJSONSchemaRef(schemaRef(schemas, "Error"))

	responses := openapi3.NewResponsesWithCapacity(2)
	responses.Set(strconv.Itoa(status), &openapi3.ResponseRef{Value: ok})
	responses.Set("default", &openapi3.ResponseRef{Value: failure})
	op.Responses = responses
	return op
}

// OpenAPIDocument describes every API route. It is validated before being
// returned.
func OpenAPIDocument(version string) (*openapi3.T, error) {
	schemas := componentSchemas()
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "flowboard",
			Description: "Projects, task graphs and membership for flowboard boards.",
			Version:     version,
		},
		Paths:      openapi3.NewPaths(),
		Components: &openapi3.Components{Schemas: schemas},
	}

	for _, rt := range apiRoutes {
		item := doc.Paths.Value(rt.path)
		if item == nil {
			item = &openapi3.PathItem{}
			doc.Paths.Set(rt.path, item)
		}
		item.SetOperation(rt.method, operation(rt, schemas))
	}

	if err := doc.Validate(context.Background()); err != nil {
		return nil, err
	}
	return doc, nil
}
