package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/tsunagi/internal/ctxutil"
	"github.com/ashita-ai/tsunagi/internal/query"
)

const (
	functionsURI      = "tsunagi://functions"
	kindURIPrefix     = "tsunagi://kinds/"
	kindURISuffix     = "/documents"
	resourceDocsLimit = 20
)

func (s *Server) registerResources() {
	// tsunagi://functions: the mounted function names.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			functionsURI,
			"Functions",
			mcplib.WithResourceDescription("Names of the functions this server mounts"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleFunctions,
	)

	if s.store == nil {
		return
	}

	// tsunagi://kinds/{kind}/documents: first documents of a kind.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			kindURIPrefix+"{kind}"+kindURISuffix,
			"Documents",
			mcplib.WithTemplateDescription("The first documents of one kind in the document store"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleKindDocuments,
	)
}

func (s *Server) handleFunctions(ctx context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	names := make([]string, 0, len(s.functions))
	for _, name := range s.functionNames() {
		if ctxutil.FunctionAllowed(ctx, name) {
			names = append(names, name)
		}
	}
	return textContents(functionsURI, names)
}

func (s *Server) handleKindDocuments(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	kind, err := parseKindDocumentsURI(uri)
	if err != nil {
		return nil, err
	}

	docs, err := s.store.Fetch(ctx, query.Query{Kind: kind, Limit: resourceDocsLimit})
	if err != nil {
		return nil, fmt.Errorf("mcp: fetch %s documents: %w", kind, err)
	}
	return textContents(uri, map[string]any{
		"kind":      kind,
		"documents": query.Results(docs),
	})
}

// parseKindDocumentsURI extracts the kind from tsunagi://kinds/{kind}/documents.
func parseKindDocumentsURI(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, kindURIPrefix)
	if !ok {
		return "", fmt.Errorf("mcp: invalid documents URI: %s", uri)
	}
	kind, ok := strings.CutSuffix(rest, kindURISuffix)
	if !ok || kind == "" || strings.Contains(kind, "/") {
		return "", fmt.Errorf("mcp: invalid documents URI: %s", uri)
	}
	return kind, nil
}

func textContents(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal %s: %w", uri, err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
