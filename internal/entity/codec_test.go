package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayloadCapturesFieldsUnknownToTheStruct(t *testing.T) {
	data := []byte(`{"displayName":"ada","legacyNickname":"bit-cruncher"}`)
	payload, extra, err := decodePayload(func() any { return &profile{} }, data)
	require.NoError(t, err)
	assert.Equal(t, &profile{DisplayName: "ada"}, payload)
	assert.Equal(t, json.RawMessage(`"bit-cruncher"`), extra["legacyNickname"])
}

func TestEncodePayloadMergesExtraFieldsBackIn(t *testing.T) {
	extra := map[string]json.RawMessage{"legacyNickname": json.RawMessage(`"bit-cruncher"`)}
	data, err := encodePayload(&profile{DisplayName: "ada"}, extra)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "ada", got["displayName"])
	assert.Equal(t, "bit-cruncher", got["legacyNickname"])
}

func TestDecodeEncodeRoundTripPreservesUnknownFields(t *testing.T) {
	original := []byte(`{"displayName":"ada","legacyNickname":"bit-cruncher"}`)
	payload, extra, err := decodePayload(func() any { return &profile{} }, original)
	require.NoError(t, err)

	reencoded, err := encodePayload(payload, extra)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(reencoded, &got))
	assert.Equal(t, "ada", got["displayName"])
	assert.Equal(t, "bit-cruncher", got["legacyNickname"])
}

func TestEncodePayloadWithNoExtraFieldsIsPlainMarshal(t *testing.T) {
	data, err := encodePayload(&profile{DisplayName: "ada"}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"displayName":"ada"}`, string(data))
}
