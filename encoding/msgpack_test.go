package encoding

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_KeyOrderIndependent(t *testing.T) {
	a := map[string]interface{}{"id": "p1", "name": "alpha", "budget": 10}
	b := map[string]interface{}{"budget": 10, "name": "alpha", "id": "p1"}

	for i := 0; i < 20; i++ {
		da, err := MarshalCanonical(a)
		require.NoError(t, err)
		db, err := MarshalCanonical(b)
		require.NoError(t, err)
		assert.Equal(t, da, db)
	}
}

func TestMarshalCanonical_DetectsValueChange(t *testing.T) {
	a, err := MarshalCanonical(map[string]interface{}{"id": "p1", "status": "open"})
	require.NoError(t, err)
	b, err := MarshalCanonical(map[string]interface{}{"id": "p1", "status": "closed"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestUnmarshal_StringsStayStrings(t *testing.T) {
	data, err := Marshal(map[string]interface{}{
		"id":     "p1",
		"nested": map[string]interface{}{"title": "x"},
	})
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, Unmarshal(data, &out))

	assert.IsType(t, "", out["id"])
	nested, ok := out["nested"].(map[string]interface{})
	require.True(t, ok, "nested maps should decode with string keys")
	assert.Equal(t, "x", nested["title"])
}

func TestCompression_RoundTrip(t *testing.T) {
	payload := []byte(`{"type":"push","entity":"projects","action":"update"}`)

	compressed, err := Compress(payload)
	require.NoError(t, err)
	assert.True(t, IsCompressed(compressed))

	out, err := Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestDecompress_PassThroughPlainData(t *testing.T) {
	payload := []byte(`{"type":"pong"}`)
	out, err := Decompress(payload)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestDecompress_CorruptFrame(t *testing.T) {
	corrupt := append(append([]byte{}, zstdMagic...), 0x00, 0x01, 0x02)
	_, err := Decompress(corrupt)
	assert.Error(t, err)
}

func TestMarshal_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if _, err := MarshalCanonical(map[string]interface{}{"goroutine": id, "iteration": j}); err != nil {
					t.Errorf("MarshalCanonical failed: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}
