package relayclient

import "encoding/json"

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "..."
	}
	return string(b)
}

// jsonString encodes s as a JSON string value
func jsonString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
