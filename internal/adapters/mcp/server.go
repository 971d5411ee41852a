// Package mcpadapter exposes passage retrieval as an MCP tool.
package mcpadapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/polis-rag/internal/core/domain"
	"github.com/kirillkom/polis-rag/internal/core/ports"
	"github.com/kirillkom/polis-rag/internal/observability/logging"
)

const SearchToolName = "search_policy_passages"

func NewServer(retriever ports.PassageRetriever, version string) *server.MCPServer {
	s := server.NewMCPServer("polis-rag", version, server.WithToolCapabilities(false))
	s.AddTool(searchTool(), SearchHandler(retriever))
	return s
}

func searchTool() mcp.Tool {
	return mcp.NewTool(SearchToolName,
		mcp.WithDescription("Search insurance policy documents and return citable passages."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Question or search text")),
		mcp.WithString("insurer_id", mcp.Description("Restrict to one insurer")),
		mcp.WithString("line_of_business", mcp.Description("Restrict to one line of business")),
		mcp.WithNumber("topN", mcp.Description("Candidates fetched from the index")),
		mcp.WithNumber("mmrK", mcp.Description("Candidates kept by diversity selection")),
		mcp.WithNumber("lambda", mcp.Description("Relevance weight for diversity selection, 0..1")),
		mcp.WithNumber("topK", mcp.Description("Maximum passages returned")),
		mcp.WithNumber("tokenLimit", mcp.Description("Token budget for all passages")),
		mcp.WithBoolean("useStitching", mcp.Description("Merge adjacent chunks of one section")),
		mcp.WithBoolean("useReranking", mcp.Description("Reorder with the cross-encoder")),
	)
}

func SearchHandler(retriever ports.PassageRetriever) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		req := domain.RetrievalRequest{
			Query: query,
			Filters: domain.SearchFilter{
				InsurerID:      request.GetString("insurer_id", ""),
				LineOfBusiness: request.GetString("line_of_business", ""),
			},
			TopN:       request.GetInt("topN", 0),
			MMRK:       request.GetInt("mmrK", 0),
			TopK:       request.GetInt("topK", 0),
			TokenLimit: request.GetInt("tokenLimit", 0),
		}
		args := request.GetArguments()
		if v, ok := args["lambda"].(float64); ok {
			req.Lambda = &v
		}
		if v, ok := args["useStitching"].(bool); ok {
			req.UseStitching = &v
		}
		if v, ok := args["useReranking"].(bool); ok {
			req.UseReranking = &v
		}

		resp, err := retriever.Retrieve(ctx, req)
		if err != nil {
			logging.FromContext(ctx).Error("mcp_search_failed", "error", err)
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return mcp.NewToolResultText(FormatPassages(resp)), nil
	}
}

// FormatPassages renders passages as numbered, cited plain text.
func FormatPassages(resp *domain.RetrievalResponse) string {
	if resp == nil || len(resp.Results) == 0 {
		return "Geen relevante passages gevonden."
	}
	var b strings.Builder
	for i, p := range resp.Results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s (score %.2f)\n%s", p.Rank, p.CitationLabel, p.Score, strings.TrimSpace(p.Text))
	}
	stats := resp.PipelineStats
	fmt.Fprintf(&b, "\n\n-- %d kandidaten, %d na drempel, %d na MMR, %d resultaten",
		stats.InitialSearch, stats.AfterSimilarityFloor, stats.MMRResults, stats.FinalResults)
	if stats.FallbackUsed {
		b.WriteString(", zonder filters")
	}
	return b.String()
}
