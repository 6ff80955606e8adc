package hybridrediscache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCodec_RoundTrip(t *testing.T) {
	c := jsonCodec{}
	type payload struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}

	data, err := c.Marshal(payload{Name: "alice", Age: 30})
	require.NoError(t, err)

	var out payload
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, payload{Name: "alice", Age: 30}, out)
}

func TestJSONCodec_UnmarshalInvalidData(t *testing.T) {
	c := jsonCodec{}
	var out int
	err := c.Unmarshal([]byte("not json"), &out)
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestJSONCodec_MarshalUnsupportedValue(t *testing.T) {
	c := jsonCodec{}
	_, err := c.Marshal(func() {})
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestMessages_LocalTTL(t *testing.T) {
	past := syncMessage{LocalExpireAt: time.Now().Add(-time.Minute)}
	assert.Equal(t, time.Duration(0), past.localTTL())

	future := syncMessage{LocalExpireAt: time.Now().Add(time.Minute)}
	assert.Greater(t, future.localTTL(), time.Duration(0))
}
