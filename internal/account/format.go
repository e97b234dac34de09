package account

import (
	"encoding/hex"
	"fmt"
)

// maxInline bounds how many bytes of a TEXT/BLOB value dump_rowid shows
// inline; larger values are rendered truncated with their full length
// noted, per the record decoder's "oversize values rendered truncated"
// contract.
const maxInline = 64

func columnKind(serialType int64) string {
	switch {
	case serialType == 0:
		return "null"
	case serialType >= 1 && serialType <= 6, serialType == 8, serialType == 9:
		return "int"
	case serialType == 7:
		return "float"
	case serialType >= 12 && serialType%2 == 0:
		return "blob"
	case serialType >= 13:
		return "text"
	default:
		return "unknown"
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%v", val)
	case []byte:
		if len(val) <= maxInline {
			return hex.EncodeToString(val)
		}
		return fmt.Sprintf("%s... (%d bytes total)", hex.EncodeToString(val[:maxInline]), len(val))
	case string:
		if len(val) <= maxInline {
			return val
		}
		return fmt.Sprintf("%s... (%d bytes total)", val[:maxInline], len(val))
	default:
		return fmt.Sprintf("%v", val)
	}
}

func hexDump(b []byte) string { return hex.EncodeToString(b) }
