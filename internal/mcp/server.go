package mcp

import (
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hpungsan/heritage/internal/ops"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"heritage_whoami": {
		def:     whoamiToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleWhoAmI },
	},
	"heritage_create": {
		def:     createToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCreate },
	},
	"heritage_purchase": {
		def:     purchaseToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePurchase },
	},
	"heritage_get": {
		def:     getToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGet },
	},
	"heritage_public": {
		def:     publicToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePublic },
	},
	"heritage_token": {
		def:     tokenToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleToken },
	},
	"heritage_transfer_token": {
		def:     transferTokenToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTransferToken },
	},
	"heritage_my_tokens": {
		def:     myTokensToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleMyTokens },
	},
	"heritage_purchases": {
		def:     purchasesToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePurchases },
	},
	"heritage_price": {
		def:     priceToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePrice },
	},
	"heritage_ledger_info": {
		def:     ledgerInfoToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLedgerInfo },
	},
	"heritage_balance": {
		def:     balanceToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleBalance },
	},
	"heritage_snapshot": {
		def:     snapshotToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSnapshot },
	},
	"heritage_restore": {
		def:     restoreToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRestore },
	},
}

// AllToolNames returns all valid tool names, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with Heritage tools registered.
// Tools listed in the config's DisabledTools are excluded from registration.
func NewServer(svc *ops.Service, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"heritage",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	h := NewHandlers(svc)

	disabled := make(map[string]bool)
	for _, name := range svc.Config.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(svc *ops.Service, version string) error {
	s := NewServer(svc, version)
	log := svc.Log
	if log == nil {
		log = zap.NewNop()
	}
	return server.ServeStdio(s, server.WithErrorLogger(zap.NewStdLog(log)))
}
