package http

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBankCSV(t *testing.T) {
	src := strings.Join([]string{
		"title,choice_1,choice_2,choice_3,correct,marks,shuffle,tag,level",
		"cap of France?,Paris,Lyon,,Paris,1,0,geo,easy",
		"cap of Japan?,Kyoto,Tokyo,Osaka,Tokyo,2,true,geo,hard",
	}, "\n")

	entries, err := parseBankCSV(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "cap of France?", entries[0].Title)
	assert.Equal(t, []string{"Paris", "Lyon"}, entries[0].Choices)
	assert.Equal(t, "Paris", entries[0].Correct)
	assert.Equal(t, 1, entries[0].Marks)
	assert.False(t, entries[0].Shuffle)

	assert.Equal(t, []string{"Kyoto", "Tokyo", "Osaka"}, entries[1].Choices)
	assert.Equal(t, 2, entries[1].Marks)
	assert.True(t, entries[1].Shuffle)
	assert.Equal(t, "hard", entries[1].Level)
}

func TestParseBankCSVMissingColumn(t *testing.T) {
	src := "title,choice_1,choice_2\nq,a,b\n"
	_, err := parseBankCSV(strings.NewReader(src))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "correct")
}

func TestParseBankCSVDefaultsMarks(t *testing.T) {
	src := "title,choice_1,choice_2,correct\nq,a,b,a\n"
	entries, err := parseBankCSV(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Marks)
}
