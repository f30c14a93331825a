// Package json pins the codebase to one jsoniter configuration so payloads,
// history deltas, and API bodies all encode identically.
package json

import jsoniter "github.com/json-iterator/go"

var (
	// JSON is the shared API instance; drop-in compatible with encoding/json.
	JSON = jsoniter.ConfigCompatibleWithStandardLibrary

	Marshal    = JSON.Marshal
	Unmarshal  = JSON.Unmarshal
	NewDecoder = JSON.NewDecoder
	NewEncoder = JSON.NewEncoder
)
