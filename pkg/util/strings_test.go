package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIntDefault(t *testing.T) {
	assert.Equal(t, 7, ParseIntDefault("", 7))
	assert.Equal(t, 7, ParseIntDefault("x1", 7))
	assert.Equal(t, 42, ParseIntDefault(" 42 ", 7))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitList("a:9092, ,b:9092,"))
	assert.Nil(t, SplitList(""))
}
