package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbed_NoKey(t *testing.T) {
	e := New(Config{Dimensions: 768})
	require.Equal(t, "gemini", e.Name())
	require.Equal(t, 768, e.Dimension())
	_, err := e.Embed(context.Background(), "hello")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestModelName(t *testing.T) {
	doc := New(Config{TaskType: "RETRIEVAL_DOCUMENT", Dimensions: 768})
	query := New(Config{TaskType: "RETRIEVAL_QUERY", Dimensions: 768})
	require.Equal(t, DefaultModel+"/RETRIEVAL_DOCUMENT@768", doc.ModelName())
	require.NotEqual(t, doc.ModelName(), query.ModelName())
}
