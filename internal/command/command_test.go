package command

import (
	"testing"

	lfserrors "github.com/marmos91/lockfs/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		text string
		want Command
	}{
		{"open notes.txt read", Open{Filename: "notes.txt", Mode: ModeRead}},
		{"open notes.txt write", Open{Filename: "notes.txt", Mode: ModeWrite}},
		{"open notes.txt readwrite", Open{Filename: "notes.txt", Mode: ModeReadWrite}},
		{"close notes.txt", Close{Filename: "notes.txt"}},
		{"read notes.txt 40", Read{Filename: "notes.txt", Count: 40}},
		{"write notes.txt hello", Write{Filename: "notes.txt", Data: []byte("hello")}},
		{"write notes.txt hello big world", Write{Filename: "notes.txt", Data: []byte("hello big world")}},
		{"write notes.txt\thello", Write{Filename: "notes.txt", Data: []byte("hello")}},
		{"write\tnotes.txt hello\tworld", Write{Filename: "notes.txt", Data: []byte("hello\tworld")}},
		{"lseek notes.txt 12", Seek{Filename: "notes.txt", Offset: 12}},
		{"  close   notes.txt  ", Close{Filename: "notes.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := Parse(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "notes.txt", got.File())
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		text string
		code lfserrors.StatusCode
	}{
		{"", lfserrors.StatusMalformed},
		{"   ", lfserrors.StatusMalformed},
		{"open notes.txt", lfserrors.StatusMalformed},
		{"open notes.txt append", lfserrors.StatusInvalidMode},
		{"open notes.txt READ", lfserrors.StatusInvalidMode},
		{"close", lfserrors.StatusMalformed},
		{"close a b", lfserrors.StatusMalformed},
		{"read notes.txt many", lfserrors.StatusMalformed},
		{"read notes.txt", lfserrors.StatusMalformed},
		{"write notes.txt", lfserrors.StatusMalformed},
		{"lseek notes.txt -x", lfserrors.StatusMalformed},
		{"unlink notes.txt", lfserrors.StatusUnknownOperation},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, err := Parse(tt.text)
			require.Error(t, err)
			code, ok := lfserrors.StatusOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestParseKeepsOutOfRangeValues(t *testing.T) {
	// Range checks belong to the handlers, which know the payload cap.
	cmd, err := Parse("read f 0")
	require.NoError(t, err)
	assert.Equal(t, 0, cmd.(Read).Count)

	cmd, err = Parse("lseek f -3")
	require.NoError(t, err)
	assert.EqualValues(t, -3, cmd.(Seek).Offset)
}

func TestFormatRoundTrip(t *testing.T) {
	cmds := []Command{
		Open{Filename: "a", Mode: ModeReadWrite},
		Close{Filename: "a"},
		Read{Filename: "a", Count: 3},
		Write{Filename: "a", Data: []byte("x y")},
		Seek{Filename: "a", Offset: 9},
	}
	for _, c := range cmds {
		got, err := Parse(Format(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}

func TestMode(t *testing.T) {
	assert.True(t, ModeReadWrite.Has(ModeRead))
	assert.True(t, ModeReadWrite.Has(ModeWrite))
	assert.False(t, ModeRead.Has(ModeWrite))
	assert.Equal(t, "none", Mode(0).String())
	assert.Equal(t, "open", OperationName(" open f read"))
	assert.Equal(t, "", OperationName(""))
}
