package core

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusJSON(t *testing.T) {
	receipt := Receipt{Account: common.HexToAddress("0x01"), Status: StatusAuthenticated}

	raw, err := json.Marshal(receipt)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"status":"authenticated"`)

	var decoded Receipt
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, StatusAuthenticated, decoded.Status)

	var s Status
	require.Error(t, json.Unmarshal([]byte(`"pending"`), &s))

	_, err = json.Marshal(Status(7))
	require.Error(t, err)
}

func TestTransitionConsumes(t *testing.T) {
	assert.False(t, (&Transition{}).Consumes())
	assert.True(t, (&Transition{SignatureKey: common.HexToHash("0x01")}).Consumes())
}
