package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildInsert(t *testing.T) {
	q, args := buildInsert("riskgraph.t", "a, b", [][]interface{}{{"x", 1.0}, {"y", 2.0}})
	assert.Equal(t, "INSERT INTO riskgraph.t (a, b) VALUES (?, ?),(?, ?)", q)
	assert.Equal(t, []interface{}{"x", 1.0, "y", 2.0}, args)

	q, args = buildInsert("riskgraph.t", "a", nil)
	assert.Empty(t, q)
	assert.Nil(t, args)
}
