package httpapi

import (
	"net/http"

	"github.com/graphql-go/graphql"

	"orgdesk.org/internal/apperr"
	"orgdesk.org/internal/audit"
	"orgdesk.org/internal/auth"
	"orgdesk.org/internal/obs"
	"orgdesk.org/internal/org"
)

var gqlCodes = map[apperr.Kind]string{
	apperr.KindValidation:   "BAD_USER_INPUT",
	apperr.KindConflict:     "CONFLICT",
	apperr.KindUnauthorized: "UNAUTHENTICATED",
	apperr.KindForbidden:    "FORBIDDEN",
	apperr.KindNotFound:     "NOT_FOUND",
	apperr.KindInternal:     "INTERNAL_SERVER_ERROR",
}

// gqlError exposes an application error through GraphQL extensions.
type gqlError struct {
	err *apperr.Error
}

func (e gqlError) Error() string { return e.err.Message }

func (e gqlError) Extensions() map[string]any {
	code, ok := gqlCodes[e.err.Kind]
	if !ok {
		code = gqlCodes[apperr.KindInternal]
	}
	ext := map[string]any{
		"code":   code,
		"status": e.err.Status(),
	}
	if len(e.err.Fields) > 0 {
		ext["fields"] = e.err.Fields
	}
	return ext
}

func toGQLError(p graphql.ResolveParams, err error) error {
	e := apperr.From(err)
	if e.Kind == apperr.KindInternal {
		obs.Logger().Error().Err(err).
			Str("request_id", audit.RequestIDFromContext(p.Context)).
			Str("field", p.Info.FieldName).
			Msg("internal error")
	}
	return gqlError{err: e}
}

type graphqlRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

func (a *API) graphqlHandler(w http.ResponseWriter, r *http.Request) {
	var req graphqlRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	if req.Query == "" {
		writeAppError(w, r, apperr.Validation("query should not be empty"))
		return
	}
	result := graphql.Do(graphql.Params{
		Schema:         a.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        contextWithHTTPRequest(r.Context(), r),
	})
	writeJSON(w, http.StatusOK, result)
}

// guarded runs the guard for the resolved field before fn.
func (a *API) guarded(fn graphql.FieldResolveFn) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		ctx, err := authenticate[graphql.ResolveParams](p.Context, a.guard, graphqlExtractor{}, p)
		if err != nil {
			return nil, toGQLError(p, err)
		}
		p.Context = ctx
		res, err := fn(p)
		if err != nil {
			return nil, toGQLError(p, err)
		}
		return res, nil
	}
}

// owned resolves the caller's id for ownership-scoped resolvers.
func owned(fn func(p graphql.ResolveParams, owner int64) (any, error)) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		user, err := auth.RequireUser(p.Context)
		if err != nil {
			return nil, err
		}
		return fn(p, user.ID)
	}
}

func argInput(p graphql.ResolveParams) map[string]any {
	m, _ := p.Args["input"].(map[string]any)
	return m
}

func argString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func argID(v any) int64 {
	n, _ := v.(int)
	return int64(n)
}

func (a *API) buildSchema() (graphql.Schema, error) {
	userType := graphql.NewObject(graphql.ObjectConfig{
		Name: "User",
		Fields: graphql.Fields{
			"id":        &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"username":  &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"createdAt": &graphql.Field{Type: graphql.NewNonNull(graphql.DateTime)},
			"updatedAt": &graphql.Field{Type: graphql.NewNonNull(graphql.DateTime)},
		},
	})
	authResponseType := graphql.NewObject(graphql.ObjectConfig{
		Name: "AuthResponse",
		Fields: graphql.Fields{
			"accessToken": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"user":        &graphql.Field{Type: graphql.NewNonNull(userType)},
		},
	})
	subDepartmentType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SubDepartment",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"name":         &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"departmentId": &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"createdAt":    &graphql.Field{Type: graphql.NewNonNull(graphql.DateTime)},
			"updatedAt":    &graphql.Field{Type: graphql.NewNonNull(graphql.DateTime)},
		},
	})
	departmentType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Department",
		Fields: graphql.Fields{
			"id":             &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"name":           &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"createdBy":      &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"subDepartments": &graphql.Field{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(subDepartmentType)))},
			"createdAt":      &graphql.Field{Type: graphql.NewNonNull(graphql.DateTime)},
			"updatedAt":      &graphql.Field{Type: graphql.NewNonNull(graphql.DateTime)},
		},
	})

	credentialsInput := func(name string) *graphql.InputObject {
		return graphql.NewInputObject(graphql.InputObjectConfig{
			Name: name,
			Fields: graphql.InputObjectConfigFieldMap{
				"username": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
				"password": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			},
		})
	}
	subDepartmentInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "SubDepartmentInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"name": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
		},
	})
	createDepartmentInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "CreateDepartmentInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"name":           &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"subDepartments": &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.NewNonNull(subDepartmentInput))},
		},
	})
	renameInput := func(name string) *graphql.InputObject {
		return graphql.NewInputObject(graphql.InputObjectConfig{
			Name: name,
			Fields: graphql.InputObjectConfigFieldMap{
				"id":   &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Int)},
				"name": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			},
		})
	}
	createSubDepartmentInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "CreateSubDepartmentInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"departmentId": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Int)},
			"name":         &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
		},
	})

	inputArg := func(t graphql.Input) graphql.FieldConfigArgument {
		return graphql.FieldConfigArgument{"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(t)}}
	}
	idArg := graphql.FieldConfigArgument{"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)}}

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"me": &graphql.Field{
				Type: graphql.NewNonNull(userType),
				Resolve: a.guarded(func(p graphql.ResolveParams) (any, error) {
					return auth.RequireUser(p.Context)
				}),
			},
			"departments": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(departmentType))),
				Resolve: a.guarded(owned(func(p graphql.ResolveParams, owner int64) (any, error) {
					return a.org.ListDepartments(p.Context, owner)
				})),
			},
			"department": &graphql.Field{
				Type: graphql.NewNonNull(departmentType),
				Args: idArg,
				Resolve: a.guarded(owned(func(p graphql.ResolveParams, owner int64) (any, error) {
					return a.org.GetDepartment(p.Context, owner, argID(p.Args["id"]))
				})),
			},
			"subDepartments": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(subDepartmentType))),
				Resolve: a.guarded(owned(func(p graphql.ResolveParams, owner int64) (any, error) {
					return a.org.ListSubDepartments(p.Context, owner)
				})),
			},
			"subDepartment": &graphql.Field{
				Type: graphql.NewNonNull(subDepartmentType),
				Args: idArg,
				Resolve: a.guarded(owned(func(p graphql.ResolveParams, owner int64) (any, error) {
					return a.org.GetSubDepartment(p.Context, owner, argID(p.Args["id"]))
				})),
			},
		},
	})

	mutation := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"register": &graphql.Field{
				Type: graphql.NewNonNull(authResponseType),
				Args: inputArg(credentialsInput("RegisterInput")),
				Resolve: a.guarded(func(p graphql.ResolveParams) (any, error) {
					in := argInput(p)
					return a.auth.Register(p.Context, auth.RegisterInput{
						Username: argString(in, "username"),
						Password: argString(in, "password"),
					})
				}),
			},
			"login": &graphql.Field{
				Type: graphql.NewNonNull(authResponseType),
				Args: inputArg(credentialsInput("LoginInput")),
				Resolve: a.guarded(func(p graphql.ResolveParams) (any, error) {
					in := argInput(p)
					return a.auth.Login(p.Context, auth.LoginInput{
						Username: argString(in, "username"),
						Password: argString(in, "password"),
					})
				}),
			},
			"logout": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Boolean),
				Resolve: a.guarded(func(p graphql.ResolveParams) (any, error) {
					token, _ := auth.TokenFromContext(p.Context)
					if err := a.auth.Logout(p.Context, token); err != nil {
						return nil, err
					}
					return true, nil
				}),
			},
			"createDepartment": &graphql.Field{
				Type: graphql.NewNonNull(departmentType),
				Args: inputArg(createDepartmentInput),
				Resolve: a.guarded(owned(func(p graphql.ResolveParams, owner int64) (any, error) {
					in := argInput(p)
					create := org.CreateDepartmentInput{Name: argString(in, "name")}
					subs, _ := in["subDepartments"].([]any)
					for _, raw := range subs {
						sub, _ := raw.(map[string]any)
						create.SubDepartments = append(create.SubDepartments, org.SubDepartmentInput{Name: argString(sub, "name")})
					}
					return a.org.CreateDepartment(p.Context, owner, create)
				})),
			},
			"updateDepartment": &graphql.Field{
				Type: graphql.NewNonNull(departmentType),
				Args: inputArg(renameInput("UpdateDepartmentInput")),
				Resolve: a.guarded(owned(func(p graphql.ResolveParams, owner int64) (any, error) {
					in := argInput(p)
					return a.org.UpdateDepartment(p.Context, owner, org.UpdateDepartmentInput{
						ID:   argID(in["id"]),
						Name: argString(in, "name"),
					})
				})),
			},
			"deleteDepartment": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Boolean),
				Args: idArg,
				Resolve: a.guarded(owned(func(p graphql.ResolveParams, owner int64) (any, error) {
					if err := a.org.DeleteDepartment(p.Context, owner, argID(p.Args["id"])); err != nil {
						return nil, err
					}
					return true, nil
				})),
			},
			"createSubDepartment": &graphql.Field{
				Type: graphql.NewNonNull(subDepartmentType),
				Args: inputArg(createSubDepartmentInput),
				Resolve: a.guarded(owned(func(p graphql.ResolveParams, owner int64) (any, error) {
					in := argInput(p)
					return a.org.CreateSubDepartment(p.Context, owner, org.CreateSubDepartmentInput{
						DepartmentID: argID(in["departmentId"]),
						Name:         argString(in, "name"),
					})
				})),
			},
			"updateSubDepartment": &graphql.Field{
				Type: graphql.NewNonNull(subDepartmentType),
				Args: inputArg(renameInput("UpdateSubDepartmentInput")),
				Resolve: a.guarded(owned(func(p graphql.ResolveParams, owner int64) (any, error) {
					in := argInput(p)
					return a.org.UpdateSubDepartment(p.Context, owner, org.UpdateSubDepartmentInput{
						ID:   argID(in["id"]),
						Name: argString(in, "name"),
					})
				})),
			},
			"deleteSubDepartment": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Boolean),
				Args: idArg,
				Resolve: a.guarded(owned(func(p graphql.ResolveParams, owner int64) (any, error) {
					if err := a.org.DeleteSubDepartment(p.Context, owner, argID(p.Args["id"])); err != nil {
						return nil, err
					}
					return true, nil
				})),
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: query, Mutation: mutation})
}
