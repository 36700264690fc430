package relay

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/GriffinCanCode/VibeCoder/backend/internal/shared/types"
	"github.com/bytedance/sonic"
)

// Format turns a shim payload into a console message
func Format(msg types.RelayMessage) types.ConsoleMessage {
	return types.ConsoleMessage{
		Method:     types.ParseConsoleMethod(msg.Method),
		Text:       JoinArgs(msg.Args),
		SourceFile: strings.TrimSpace(msg.File),
	}
}

// JoinArgs renders console arguments the way the panel shows them
func JoinArgs(args []json.RawMessage) string {
	parts := make([]string, 0, len(args))
	for _, raw := range args {
		parts = append(parts, formatArg(raw))
	}
	return strings.Join(parts, " ")
}

func formatArg(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := sonic.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}

	var v any
	if err := sonic.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := sonic.ConfigStd.MarshalToString(v)
	if err != nil {
		return string(raw)
	}
	return out
}
