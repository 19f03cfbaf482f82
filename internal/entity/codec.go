package entity

import (
	"encoding/json"
	"fmt"

	"github.com/ecsdb/ecsdb/internal/registry"
)

// decodePayload unmarshals a stored JSON payload into a fresh instance
// built by ctor, and separately captures any JSON object keys data carries
// that ctor's concrete type doesn't declare as fields. encoding/json drops
// those silently on a struct target, so decodePayload hands the leftovers
// back as extra for the caller to stash on the componentSlot and merge back
// in at encodePayload time, the only way a load/save round-trip preserves
// them verbatim (spec §6).
func decodePayload(ctor registry.Constructor, data []byte) (payload any, extra map[string]json.RawMessage, err error) {
	var target any
	if ctor != nil {
		target = ctor()
	} else {
		target = &map[string]any{}
	}
	if len(data) == 0 {
		return target, nil, nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return nil, nil, fmt.Errorf("decoding component payload: %w", err)
	}

	extra, err = unknownFields(target, data)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding component payload: %w", err)
	}
	return target, extra, nil
}

// unknownFields diffs data's top-level JSON keys against what re-marshaling
// target produces, returning the keys target's type doesn't round-trip on
// its own. Returns nil if target already captures everything (the bare
// map[string]any fallback, or data that isn't a JSON object).
func unknownFields(target any, data []byte) (map[string]json.RawMessage, error) {
	if _, isRawMap := target.(*map[string]any); isRawMap {
		return nil, nil
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, nil
	}

	knownData, err := json.Marshal(target)
	if err != nil {
		return nil, err
	}
	var known map[string]json.RawMessage
	if err := json.Unmarshal(knownData, &known); err != nil {
		return nil, err
	}

	var extra map[string]json.RawMessage
	for k, v := range all {
		if _, ok := known[k]; !ok {
			if extra == nil {
				extra = make(map[string]json.RawMessage)
			}
			extra[k] = v
		}
	}
	return extra, nil
}

// encodePayload marshals a component payload back to JSON for storage,
// re-merging any extra fields a prior decodePayload captured so they
// survive a load/modify/save cycle on fields the Go type never declared.
func encodePayload(payload any, extra map[string]json.RawMessage) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding component payload: %w", err)
	}
	if len(extra) == 0 {
		return raw, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, fmt.Errorf("encoding component payload: %w", err)
	}
	for k, v := range extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encoding component payload: %w", err)
	}
	return out, nil
}
