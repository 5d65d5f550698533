package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bagelhq/rwa-engine/core"
)

type callbackPayload struct {
	RequestID   string `json:"request_id"`
	AssetID     string `json:"asset_id"`
	RequestType string `json:"request_type"`
	Success     bool   `json:"success"`
	Reason      string `json:"reason"`
	Timestamp   string `json:"timestamp"`
}

// DecodeCallback parses a custodian callback body into the engine's
// callback tuple. Timestamps are RFC 3339; a missing timestamp is left zero
// for the service to fill with its own clock.
func DecodeCallback(body []byte) (core.VerificationCallback, error) {
	var payload callbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return core.VerificationCallback{}, fmt.Errorf("oracle: malformed callback payload: %w", err)
	}
	requestID := strings.TrimSpace(payload.RequestID)
	if requestID == "" {
		return core.VerificationCallback{}, fmt.Errorf("oracle: callback request_id is required")
	}
	requestType := core.RequestType(strings.TrimSpace(payload.RequestType))
	if err := requestType.Validate(); err != nil {
		return core.VerificationCallback{}, err
	}

	callback := core.VerificationCallback{
		RequestID: requestID,
		AssetID:   strings.TrimSpace(payload.AssetID),
		Type:      requestType,
		Outcome:   core.OutcomeFailed,
		Reason:    strings.TrimSpace(payload.Reason),
	}
	if payload.Success {
		callback.Outcome = core.OutcomeFulfilled
	}
	if raw := strings.TrimSpace(payload.Timestamp); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return core.VerificationCallback{}, fmt.Errorf("oracle: bad callback timestamp %q: %w", raw, err)
		}
		callback.Timestamp = parsed.UTC()
	}
	return callback, nil
}
