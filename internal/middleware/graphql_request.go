package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"

	"github.com/taras/graphsheets/internal/logging"
)

// maxGraphQLBody caps how much of a request body is buffered for analysis.
const maxGraphQLBody = 1 << 20

type graphQLRequest struct {
	Query         string `json:"query"`
	OperationName string `json:"operationName"`
}

// RequestInfo is what the server learns about a GraphQL request before executing it.
type RequestInfo struct {
	OperationName  string
	OperationType  string
	FieldCount     int
	SelectionDepth int
	VariableCount  int
	// RootFields lists the top-level selections, e.g. createPerson.
	RootFields []string
}

type requestInfoKey struct{}

// RequestInfoFromContext returns the analysis stored by GraphQLRequestMiddleware.
func RequestInfoFromContext(ctx context.Context) (*RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(*RequestInfo)
	return info, ok && info != nil
}

// GraphQLRequestMiddleware parses the GraphQL envelope once, stores the result
// in the request context and tags the request logger with the operation.
func GraphQLRequestMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := analyzeRequest(r)
			if info == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), requestInfoKey{}, info)
			fields := []any{slog.String("graphql.operation_type", info.OperationType)}
			if info.OperationName != "" {
				fields = append(fields, slog.String("graphql.operation_name", info.OperationName))
			}
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(fields...))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// analyzeRequest returns nil when the request carries no parseable operation.
func analyzeRequest(r *http.Request) *RequestInfo {
	if info, ok := RequestInfoFromContext(r.Context()); ok {
		return info
	}
	query, operationName := extractGraphQLRequest(r)
	info, err := extractRequestInfo(query, operationName)
	if err != nil {
		return nil
	}
	return info
}

func extractGraphQLRequest(r *http.Request) (string, string) {
	if r.Method == http.MethodGet {
		return r.URL.Query().Get("query"), r.URL.Query().Get("operationName")
	}
	if r.Method != http.MethodPost || r.Body == nil {
		return "", ""
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxGraphQLBody))
	if err != nil {
		return "", ""
	}
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))

	if strings.Contains(r.Header.Get("Content-Type"), "application/graphql") {
		return string(body), r.URL.Query().Get("operationName")
	}

	var payload graphQLRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", ""
	}
	return payload.Query, payload.OperationName
}

func extractRequestInfo(query, operationName string) (*RequestInfo, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{
			Body: []byte(query),
			Name: "graphql",
		}),
	})
	if err != nil {
		return nil, err
	}

	fragments := make(map[string]*ast.FragmentDefinition)
	var op *ast.OperationDefinition
	var first *ast.OperationDefinition
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.FragmentDefinition:
			fragments[d.Name.Value] = d
		case *ast.OperationDefinition:
			if first == nil {
				first = d
			}
			if op == nil && operationName != "" && d.Name != nil && d.Name.Value == operationName {
				op = d
			}
		}
	}
	if op == nil && operationName == "" {
		op = first
	}
	if op == nil {
		return nil, nil
	}

	info := &RequestInfo{
		OperationName: operationName,
		OperationType: string(op.Operation),
		VariableCount: len(op.VariableDefinitions),
	}
	if info.OperationName == "" && op.Name != nil {
		info.OperationName = op.Name.Value
	}
	if op.SelectionSet != nil {
		for _, sel := range op.SelectionSet.Selections {
			if f, ok := sel.(*ast.Field); ok {
				info.RootFields = append(info.RootFields, f.Name.Value)
			}
		}
		info.FieldCount, info.SelectionDepth = countFieldsAndDepth(op.SelectionSet, fragments, 1, map[string]bool{})
	}
	return info, nil
}

// countFieldsAndDepth walks a selection set expanding fragments once each.
func countFieldsAndDepth(set *ast.SelectionSet, fragments map[string]*ast.FragmentDefinition, depth int, expanded map[string]bool) (fields, maxDepth int) {
	if set == nil {
		return 0, depth - 1
	}
	maxDepth = depth

	merge := func(n, d int) {
		fields += n
		if d > maxDepth {
			maxDepth = d
		}
	}

	for _, selection := range set.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			fields++
			if sel.SelectionSet != nil {
				merge(countFieldsAndDepth(sel.SelectionSet, fragments, depth+1, expanded))
			}
		case *ast.InlineFragment:
			merge(countFieldsAndDepth(sel.SelectionSet, fragments, depth, expanded))
		case *ast.FragmentSpread:
			name := sel.Name.Value
			if expanded[name] {
				continue
			}
			expanded[name] = true
			if frag, ok := fragments[name]; ok {
				merge(countFieldsAndDepth(frag.SelectionSet, fragments, depth, expanded))
			}
		}
	}
	return fields, maxDepth
}
