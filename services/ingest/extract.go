package ingest

import "strings"

// memoDelimiter separates the leading identifier from the file path in
// memo-style fields.
const memoDelimiter = "|"

// The registry reports alerts in several shapes depending on token kind.
// Each logical value is extracted by walking a fixed priority-ordered list of
// candidate field names.
var (
	tokenFields     = []string{"token", "canarytoken"}
	sourceIPFields  = []string{"src_ip", "ip", "source_ip"}
	userAgentFields = []string{"useragent", "user_agent"}
)

// extractTokenID pulls a candidate token identifier from the payload. After
// the explicit token fields it falls back to the leading segment of a
// memo-like field, which correlates through the stored memo substring match.
func extractTokenID(payload map[string]any) string {
	if v := firstStringField(payload, tokenFields); v != "" {
		return v
	}

	memo := stringField(payload, "memo")
	if memo == "" {
		return ""
	}
	if i := strings.Index(memo, memoDelimiter); i > 0 {
		return memo[:i]
	}
	return memo
}

// HasTokenID reports whether the payload carries anything the pipeline could
// correlate. The webhook endpoint uses it to flag unidentifiable alerts in
// its acknowledgement.
func HasTokenID(payload map[string]any) bool {
	return extractTokenID(payload) != ""
}

func extractSourceIP(payload map[string]any) string {
	return firstStringField(payload, sourceIPFields)
}

func extractUserAgent(payload map[string]any) string {
	return firstStringField(payload, userAgentFields)
}

func firstStringField(payload map[string]any, fields []string) string {
	for _, field := range fields {
		if v := stringField(payload, field); v != "" {
			return v
		}
	}
	return ""
}

func stringField(payload map[string]any, field string) string {
	v, ok := payload[field]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
