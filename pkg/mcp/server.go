package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowcanvas/internal/diagram"
	"github.com/rendis/flowcanvas/internal/expressions"
	"github.com/rendis/flowcanvas/internal/store"
	"github.com/rendis/flowcanvas/internal/streaming"
	"github.com/rendis/flowcanvas/internal/validation"
)

// Deps holds the dependencies for creating a FlowCanvasServer.
type Deps struct {
	Store       store.ElementStore
	Hub         streaming.EventHub
	Converter   *diagram.Converter
	Validator   validation.Validator
	Expressions *expressions.Registry
	// ASCIIBinDir optionally points at a directory holding a mermaid-ascii binary.
	ASCIIBinDir string
	Logger      *slog.Logger
}

// FlowCanvasServer wraps an MCP server with canvas tool handlers.
type FlowCanvasServer struct {
	store       store.ElementStore
	hub         streaming.EventHub
	converter   *diagram.Converter
	validator   validation.Validator
	expressions *expressions.Registry
	asciiBinDir string
	logger      *slog.Logger
	mcpServer   *server.MCPServer
}

// NewFlowCanvasServer creates a FlowCanvasServer with all 5 tools registered.
// Missing converter, validator and expression registry get defaults.
func NewFlowCanvasServer(deps Deps) (*FlowCanvasServer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &FlowCanvasServer{
		store:       deps.Store,
		hub:         deps.Hub,
		converter:   deps.Converter,
		validator:   deps.Validator,
		expressions: deps.Expressions,
		asciiBinDir: deps.ASCIIBinDir,
		logger:      logger,
	}
	if s.converter == nil {
		s.converter = diagram.NewConverter(diagram.WithLogger(logger))
	}
	if s.validator == nil {
		v, err := validation.NewJSONSchemaValidator()
		if err != nil {
			return nil, err
		}
		s.validator = v
	}
	if s.expressions == nil {
		reg, err := expressions.NewRegistry()
		if err != nil {
			return nil, err
		}
		s.expressions = reg
	}

	mcpSrv := server.NewMCPServer(
		"flowcanvas",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("FlowCanvas turns flowchart text into positioned canvas elements. Use canvas.convert to lay out a diagram (optionally saving it), canvas.query to search the canvas, canvas.create to add elements, canvas.delete to remove one, and canvas.render to preview diagram text as mermaid, ascii or dot."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *FlowCanvasServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FlowCanvasServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 5 registered MCP tools as ServerTool entries.
func (s *FlowCanvasServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: convertTool(), Handler: s.handleConvert},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: createTool(), Handler: s.handleCreate},
		{Tool: deleteTool(), Handler: s.handleDelete},
		{Tool: renderTool(), Handler: s.handleRender},
	}
}

// --- Tool definitions ---

func convertTool() mcp.Tool {
	return mcp.NewTool("canvas.convert",
		mcp.WithDescription("Convert flowchart text into positioned canvas elements"),
		mcp.WithString("text", mcp.Required(), mcp.Description("Diagram text starting with a header such as 'graph TD'")),
		mcp.WithBoolean("persist", mcp.Description("Write the elements to the canvas, overwriting matching ids")),
		mcp.WithBoolean("replace", mcp.Description("Replace the whole canvas with the elements")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("canvas.query",
		mcp.WithDescription("Search canvas elements"),
		mcp.WithString("type", mcp.Description("Element type to match (rectangle, ellipse, diamond, arrow, ...)")),
		mcp.WithString("where", mcp.Description("Boolean predicate evaluated against each element")),
		mcp.WithString("engine",
			mcp.Enum("expr", "cel", "jq"),
			mcp.Description("Predicate language (default: expr)"),
		),
		mcp.WithString("select", mcp.Description("jq projection applied to the matching list")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of elements to return")),
	)
}

func createTool() mcp.Tool {
	return mcp.NewTool("canvas.create",
		mcp.WithDescription("Add elements to the canvas; an existing id is overwritten"),
		mcp.WithString("elements", mcp.Required(), mcp.Description("JSON array of element objects; minor syntax errors are repaired")),
	)
}

func deleteTool() mcp.Tool {
	return mcp.NewTool("canvas.delete",
		mcp.WithDescription("Delete a canvas element"),
		mcp.WithString("id", mcp.Required(), mcp.Description("ID of the element to delete")),
	)
}

func renderTool() mcp.Tool {
	return mcp.NewTool("canvas.render",
		mcp.WithDescription("Render flowchart text as Mermaid, ASCII art or Graphviz DOT"),
		mcp.WithString("text", mcp.Required(), mcp.Description("Diagram text to render")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("mermaid", "ascii", "dot"),
			mcp.Description("Output format"),
		),
	)
}
