/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayloadObject(t *testing.T) {
	decoded, warning := decodePayload([]byte(`{"settlementId":"stl-1","amount":10.25,"state":"SETTLED"}`))
	require.Empty(t, warning)

	payload, ok := decoded.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "stl-1", payload["settlementId"])
	assert.Equal(t, json.Number("10.25"), payload["amount"], "numbers keep their exact representation")
	assert.Equal(t, "SETTLED", payload["state"])
}

func TestDecodePayloadArray(t *testing.T) {
	decoded, warning := decodePayload([]byte(`[1,2,3]`))
	require.Empty(t, warning)
	assert.Len(t, decoded, 3)
}

func TestDecodePayloadEmpty(t *testing.T) {
	decoded, warning := decodePayload(nil)
	assert.Nil(t, decoded)
	assert.Empty(t, warning)
}

func TestDecodePayloadMalformed(t *testing.T) {
	decoded, warning := decodePayload([]byte(`{"broken`))
	assert.Nil(t, decoded)
	assert.NotEmpty(t, warning)
}

func TestDecodePayloadTrailingData(t *testing.T) {
	decoded, warning := decodePayload([]byte(`{"a":1} trailing`))
	assert.Nil(t, decoded)
	assert.NotEmpty(t, warning)
}
