package mongodb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePipeline(t *testing.T) {
	stages, err := parsePipeline(`[{"$match": {"genre": "fantasy"}}, {"$limit": 5}]`)
	require.NoError(t, err)
	assert.Len(t, stages, 2)
}

func TestParsePipelineInvalidJSON(t *testing.T) {
	_, err := parsePipeline(`{"$match": `)
	assert.Error(t, err)
}
