package blocks

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlocksJSON(t *testing.T) {
	t.Run("should round-trip a mixed sequence", func(t *testing.T) {
		original := Blocks{
			TextBlock{Text: "hello"},
			ToolBlock{
				ID:     "t1",
				Name:   "lookup",
				Input:  map[string]any{"q": "x"},
				Result: "42",
				Status: ToolSuccess,
			},
		}

		data, err := json.Marshal(original)
		require.NoError(t, err)

		var decoded Blocks
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, original, decoded)
	})

	t.Run("should encode status as a string", func(t *testing.T) {
		data, err := json.Marshal(Blocks{ToolBlock{ID: "t1", Status: ToolLoading}})
		require.NoError(t, err)
		assert.Contains(t, string(data), `"status":"loading"`)
	})

	t.Run("should reject an unknown block type", func(t *testing.T) {
		var decoded Blocks
		err := json.Unmarshal([]byte(`[{"type":"video"}]`), &decoded)
		assert.Error(t, err)
	})
}

func TestFlatten(t *testing.T) {
	t.Run("should concatenate only text runs", func(t *testing.T) {
		seq := []ContentBlock{
			TextBlock{Text: "a"},
			ToolBlock{ID: "t1", Name: "lookup"},
			TextBlock{Text: "b"},
		}
		assert.Equal(t, "ab", Flatten(seq))
	})

	t.Run("should return empty for no blocks", func(t *testing.T) {
		assert.Equal(t, "", Flatten(nil))
	})
}
