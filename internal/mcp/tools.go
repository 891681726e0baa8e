package mcp

import "github.com/mark3labs/mcp-go/mcp"

var stringItems = mcp.Items(map[string]any{"type": "string"})

var whoamiToolDef = mcp.NewTool("heritage_whoami",
	mcp.WithDescription("Return the principal this server acts as."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var createToolDef = mcp.NewTool("heritage_create",
	mcp.WithDescription("Seal a free time-locked capsule owned by the caller. Returns its id."),
	mcp.WithArray("contents", mcp.Required(),
		mcp.Description(`Key/value entries, e.g. [{"key":"letter","value":"..."}]. A JSON string of the same array is also accepted.`),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"key":   map[string]any{"type": "string"},
				"value": map[string]any{"type": "string"},
			},
			"required": []string{"key", "value"},
		}),
	),
	mcp.WithString("unlock_time_ms", mcp.Required(),
		mcp.Description("Unlock time in milliseconds since the Unix epoch. Must be in the future.")),
	mcp.WithArray("recipients", mcp.Description("Principals allowed to read before the unlock time."), stringItems),
	mcp.WithBoolean("is_public", mcp.Description("List the capsule publicly once unlocked.")),
)

var purchaseToolDef = mcp.NewTool("heritage_purchase",
	mcp.WithDescription("Pay the capsule price through the ledger and seal a capsule with a heritage token."),
	mcp.WithArray("contents", mcp.Required(), mcp.Description("Key/value entries, as for heritage_create.")),
	mcp.WithString("unlock_time_ms", mcp.Required(),
		mcp.Description("Unlock time in milliseconds since the Unix epoch. Must be in the future.")),
	mcp.WithArray("recipients", mcp.Description("Principals allowed to read before the unlock time."), stringItems),
	mcp.WithBoolean("is_public", mcp.Description("List the capsule publicly once unlocked.")),
	mcp.WithString("payment_target", mcp.Description("Account receiving the payment. Defaults to the treasury.")),
	mcp.WithString("ledger_ref", mcp.Description("Ledger the payment goes through. Must match the configured ledger.")),
)

var getToolDef = mcp.NewTool("heritage_get",
	mcp.WithDescription("Read a capsule. Locked capsules the caller may not read come back as the empty record."),
	mcp.WithNumber("id", mcp.Required(), mcp.Description("Capsule id.")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var publicToolDef = mcp.NewTool("heritage_public",
	mcp.WithDescription("List public capsules whose unlock time has passed."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var tokenToolDef = mcp.NewTool("heritage_token",
	mcp.WithDescription("Read a heritage token. Returns null when it does not exist."),
	mcp.WithNumber("token_id", mcp.Required(), mcp.Description("Token id (same as the capsule id).")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var transferTokenToolDef = mcp.NewTool("heritage_transfer_token",
	mcp.WithDescription("Give a heritage token owned by the caller to another principal."),
	mcp.WithNumber("token_id", mcp.Required(), mcp.Description("Token id.")),
	mcp.WithString("new_owner", mcp.Required(), mcp.Description("Principal receiving the token.")),
)

var myTokensToolDef = mcp.NewTool("heritage_my_tokens",
	mcp.WithDescription("List heritage tokens the caller owns."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var purchasesToolDef = mcp.NewTool("heritage_purchases",
	mcp.WithDescription("List purchases made by a principal."),
	mcp.WithString("buyer", mcp.Description("Buyer principal. Defaults to the caller.")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var priceToolDef = mcp.NewTool("heritage_price",
	mcp.WithDescription("Return the capsule price in ledger base units."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var ledgerInfoToolDef = mcp.NewTool("heritage_ledger_info",
	mcp.WithDescription("Describe the configured ledger: name, symbol, decimals, fee and the capsule price."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var balanceToolDef = mcp.NewTool("heritage_balance",
	mcp.WithDescription("Query a ledger balance."),
	mcp.WithString("account", mcp.Description("Account principal. Defaults to the caller.")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var snapshotToolDef = mcp.NewTool("heritage_snapshot",
	mcp.WithDescription("Write every capsule, token and purchase to a JSONL snapshot."),
	mcp.WithString("path", mcp.Description("Destination .jsonl file. Defaults to the snapshots directory.")),
)

var restoreToolDef = mcp.NewTool("heritage_restore",
	mcp.WithDescription("Load a JSONL snapshot into the store. All records are added or none are."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Snapshot .jsonl file.")),
	mcp.WithDestructiveHintAnnotation(true),
)
