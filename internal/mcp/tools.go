package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/tsunagi/internal/ctxutil"
	"github.com/ashita-ai/tsunagi/internal/event"
	"github.com/ashita-ai/tsunagi/internal/param"
	"github.com/ashita-ai/tsunagi/internal/query"
)

func (s *Server) registerTools() {
	// tsunagi_invoke: run a mounted function.
	s.mcpServer.AddTool(
		mcplib.NewTool("tsunagi_invoke",
			mcplib.WithDescription(`Invoke a mounted function with plain JSON parameters.

Parameters are given as objects mapping key to value. Values are converted to
typed parameters the same way a function's own writes are: strings, integers,
floats, booleans, homogeneous lists of those, and objects.

A task parameter whose value is a string "$name$" is read from the event
parameter "name" instead.

WHAT YOU GET BACK: the event parameters after the function ran, decoded to
plain JSON, plus the function's log messages. A failed function is reported
as an error result carrying the same body.

EXAMPLE: function="query", task_parameters={"query_kind": "user",
"result_key": "adults", "query_filter": "age,>=,18,integer"}`),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("function",
				mcplib.Description("Name of the function, as listed by tsunagi://functions"),
				mcplib.Required(),
			),
			mcplib.WithObject("task_parameters",
				mcplib.Description("Task parameters: key to plain JSON value"),
			),
			mcplib.WithObject("event_parameters",
				mcplib.Description("Event parameters: key to plain JSON value"),
			),
		),
		s.handleInvoke,
	)

	if s.store == nil {
		return
	}

	// tsunagi_query: read documents without going through a function.
	s.mcpServer.AddTool(
		mcplib.NewTool("tsunagi_query",
			mcplib.WithDescription(`Fetch documents of one kind from the document store.

FILTER SYNTAX: semicolon-separated "field,op,value,type" clauses, all of which
must match. op is one of = != < <= > >=. type is one of string, integer,
double, boolean, key, null. Use field __key__ (or type key) for the document
id and dots for nested fields.

EXAMPLE: kind="user", filter="age,>=,18,integer;address.city,=,Lima,string"`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("kind",
				mcplib.Description("Document kind"),
				mcplib.Required(),
			),
			mcplib.WithString("filter",
				mcplib.Description("Optional filter expression"),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum documents to return"),
				mcplib.Min(1),
				mcplib.Max(float64(s.maxLimit)),
				mcplib.DefaultNumber(20),
			),
		),
		s.handleQuery,
	)
}

// invokeResult is the JSON body of a tsunagi_invoke result.
type invokeResult struct {
	EventParameters map[string]any `json:"event_parameters"`
	Logs            []string       `json:"logs,omitempty"`
	Error           string         `json:"error,omitempty"`
}

func (s *Server) handleInvoke(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	name, err := request.RequireString("function")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	task, ok := s.functions[name]
	if !ok {
		return errorResult(fmt.Sprintf("function %q not found; available: %s", name, strings.Join(s.functionNames(), ", "))), nil
	}
	if !ctxutil.FunctionAllowed(ctx, name) {
		return errorResult(fmt.Sprintf("token does not allow function %q", name)), nil
	}

	args := request.GetArguments()
	taskParams, err := paramList(args["task_parameters"])
	if err != nil {
		return errorResult("task_parameters: " + err.Error()), nil
	}
	eventParams, err := paramList(args["event_parameters"])
	if err != nil {
		return errorResult("event_parameters: " + err.Error()), nil
	}

	res := event.Execute(ctx, event.Payload{TaskParameters: taskParams, EventParameters: eventParams}, task)

	out := invokeResult{
		EventParameters: make(map[string]any),
		Logs:            res.Logs,
	}
	for _, p := range res.Response.EventParameters.Params() {
		if p.Key == event.ExceptionKey || p.Key == event.LoggingKey {
			continue
		}
		if _, seen := out.EventParameters[p.Key]; seen {
			continue
		}
		v, err := param.Decode(p.Value)
		if err != nil {
			v = fmt.Sprintf("<%v>", err)
		}
		out.EventParameters[p.Key] = v
	}
	if res.Failed() {
		out.Error = res.Err.Error()
		s.logger.Warn("mcp: function failed", "function", name, "error", res.Err)
	}
	return jsonResult(out, res.Failed()), nil
}

// paramList encodes a JSON object argument into a parameter list. Keys are
// sorted so the list order is stable.
func paramList(arg any) (*param.List, error) {
	if arg == nil {
		return param.NewList(), nil
	}
	obj, ok := arg.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("must be an object, got %T", arg)
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	params := make([]param.Param, 0, len(keys))
	for _, k := range keys {
		v, err := param.Encode(obj[k])
		if err != nil {
			return nil, fmt.Errorf("%q: %w", k, err)
		}
		params = append(params, param.Param{Key: k, Value: v})
	}
	return param.NewList(params...), nil
}

func (s *Server) handleQuery(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	kind, err := request.RequireString("kind")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	filters, err := query.ParseFilter(request.GetString("filter", ""))
	if err != nil {
		return errorResult(err.Error()), nil
	}
	limit := request.GetInt("limit", 20)
	if limit < 1 || limit > s.maxLimit {
		return errorResult(fmt.Sprintf("limit must be between 1 and %d", s.maxLimit)), nil
	}

	docs, err := s.store.Fetch(ctx, query.Query{Kind: kind, Filters: filters, Limit: limit})
	if err != nil {
		return errorResult(fmt.Sprintf("query failed: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"documents": query.Results(docs),
		"count":     len(docs),
	}, false), nil
}
