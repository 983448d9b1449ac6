package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRequestInfo(t *testing.T) {
	tests := []struct {
		name          string
		query         string
		operationName string
		want          *RequestInfo
		wantErr       bool
	}{
		{
			name:  "nested create",
			query: `mutation { createPerson(person: {name: "Lois"}) { id products { id name } father { id } } }`,
			want: &RequestInfo{
				OperationType:  "mutation",
				FieldCount:     7,
				SelectionDepth: 3,
				RootFields:     []string{"createPerson"},
			},
		},
		{
			name:          "named operation among several",
			query:         `query A { persons { id } } query B($id: ID!) { person(id: $id) { id name } products { id } }`,
			operationName: "B",
			want: &RequestInfo{
				OperationName:  "B",
				OperationType:  "query",
				FieldCount:     5,
				SelectionDepth: 2,
				VariableCount:  1,
				RootFields:     []string{"person", "products"},
			},
		},
		{
			name:  "fragments expand once",
			query: `query Q { persons { ...P } } fragment P on Person { id father { ...P } }`,
			want: &RequestInfo{
				OperationName:  "Q",
				OperationType:  "query",
				FieldCount:     3,
				SelectionDepth: 3,
				RootFields:     []string{"persons"},
			},
		},
		{
			name:  "inline fragment keeps depth",
			query: `{ persons { ... on Person { id } } }`,
			want: &RequestInfo{
				OperationType:  "query",
				FieldCount:     2,
				SelectionDepth: 2,
				RootFields:     []string{"persons"},
			},
		},
		{
			name:          "unknown operation name",
			query:         `query A { persons { id } }`,
			operationName: "Missing",
		},
		{
			name: "empty query",
		},
		{
			name:    "syntax error",
			query:   `query {`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractRequestInfo(tt.query, tt.operationName)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGraphQLRequestMiddleware_PreservesBody(t *testing.T) {
	body := `{"query":"mutation { createProduct(product: {name: \"Cape\"}) { id } }"}`
	var (
		info    *RequestInfo
		forward string
	)
	handler := GraphQLRequestMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, _ = RequestInfoFromContext(r.Context())
		b, _ := io.ReadAll(r.Body)
		forward = string(b)
	}))

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, info)
	assert.Equal(t, "mutation", info.OperationType)
	assert.Equal(t, []string{"createProduct"}, info.RootFields)
	assert.Equal(t, body, forward)
}

func TestExtractGraphQLRequest_Variants(t *testing.T) {
	get := httptest.NewRequest(http.MethodGet, "/graphql?query=%7Bpersons%7Bid%7D%7D&operationName=X", nil)
	q, op := extractGraphQLRequest(get)
	assert.Equal(t, "{persons{id}}", q)
	assert.Equal(t, "X", op)

	raw := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader("{ products { id } }"))
	raw.Header.Set("Content-Type", "application/graphql")
	q, _ = extractGraphQLRequest(raw)
	assert.Equal(t, "{ products { id } }", q)

	put := httptest.NewRequest(http.MethodPut, "/graphql", strings.NewReader(`{"query":"{a}"}`))
	q, _ = extractGraphQLRequest(put)
	assert.Empty(t, q)
}
