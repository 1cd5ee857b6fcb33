package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dalnet/rbnc/internal/model"
)

func TestParseConsoleLine(t *testing.T) {
	id, text, err := parseConsoleLine("12 /join #go secret\n")
	require.NoError(t, err)
	assert.Equal(t, model.BufferID(12), id)
	assert.Equal(t, "/join #go secret", text)

	id, text, err = parseConsoleLine("3 hello  there ")
	require.NoError(t, err)
	assert.Equal(t, model.BufferID(3), id)
	assert.Equal(t, "hello  there ", text)

	id, text, err = parseConsoleLine("7")
	require.NoError(t, err)
	assert.Equal(t, model.BufferID(7), id)
	assert.Equal(t, "", text)

	for _, bad := range []string{"/join #go", "0 hi", "-1 hi", "x y"} {
		_, _, err := parseConsoleLine(bad)
		assert.Error(t, err, bad)
	}
}

type submission struct {
	buffer model.BufferID
	line   string
}

type recordingSubmitter struct {
	got []submission
}

func (r *recordingSubmitter) Submit(_ context.Context, buffer model.BufferID, line string) error {
	r.got = append(r.got, submission{buffer, line})
	return nil
}

func TestRunConsole(t *testing.T) {
	input := "1 /join #go\n\nnonsense\n2 hi\n"
	rec := &recordingSubmitter{}

	runConsole(context.Background(), strings.NewReader(input), rec, zap.NewNop())

	assert.Equal(t, []submission{
		{buffer: 1, line: "/join #go"},
		{buffer: 2, line: "hi"},
	}, rec.got)
}
