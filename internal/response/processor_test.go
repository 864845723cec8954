package response

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oblique/pkg/obliquetypes"
)

func selfParams(target string) obliquetypes.SessionParameters {
	return obliquetypes.SessionParameters{Mode: obliquetypes.ModeSelf, TargetIdentity: target}
}

func TestProcess_ExtractsTargetTurn(t *testing.T) {
	p := NewProcessor()

	out, err := p.Process("<carol> hello there\n<alice> bye\n", selfParams("carol"), obliquetypes.ProfileBase, false)
	require.NoError(t, err)
	assert.Equal(t, "hello there", out)
}

func TestProcess_Idempotent(t *testing.T) {
	p := NewProcessor()
	params := selfParams("carol")

	inputs := []string{
		"<carol> hello there\n<alice> bye\n",
		"just words\\nmore words</stop>ignored",
		"  spaced\t\tout   text [oblique]  ",
		"<bob> not carol\n<carol> mine\ncontinued\n<dave> theirs",
	}
	for _, in := range inputs {
		first, err := p.Process(in, params, obliquetypes.ProfileBase, false)
		require.NoError(t, err, in)
		second, err := p.Process(first, params, obliquetypes.ProfileBase, false)
		require.NoError(t, err, in)
		assert.Equal(t, first, second, in)
	}
}

func TestProcess_FullModeIdempotent(t *testing.T) {
	p := NewProcessor()
	params := obliquetypes.SessionParameters{Mode: obliquetypes.ModeFull, TargetIdentity: "carol"}

	tests := []struct {
		in   string
		want string
	}{
		{"a [obl[oblique]ique] b", "a b"},
		{"keep </st[oblique]op> tail", "keep"},
		{"<carol> hi\\n<alice> yo", "<carol> hi\n<alice> yo"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			first, err := p.Process(tt.in, params, obliquetypes.ProfileBase, false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, first)

			second, err := p.Process(first, params, obliquetypes.ProfileBase, false)
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}

func TestProcess_ColonSpeakerWithoutSpace(t *testing.T) {
	p := NewProcessor()
	params := obliquetypes.SessionParameters{TargetIdentity: "carol", SuppressName: true}

	got, err := p.Process("carol: hi there\nbob:I am bob now", params, obliquetypes.ProfileInstruct, false)
	require.NoError(t, err)
	assert.Equal(t, "hi there", got)
}

func TestProcess_Modes(t *testing.T) {
	p := NewProcessor()
	raw := "<carol> one\n<alice> two"

	tests := []struct {
		name    string
		params  obliquetypes.SessionParameters
		dialect obliquetypes.ProfileType
		stops   bool
		want    string
	}{
		{
			name:    "full mode keeps everything",
			params:  obliquetypes.SessionParameters{Mode: obliquetypes.ModeFull, TargetIdentity: "carol"},
			dialect: obliquetypes.ProfileBase,
			want:    "<carol> one\n<alice> two",
		},
		{
			name:    "empty mode behaves as self",
			params:  obliquetypes.SessionParameters{TargetIdentity: "carol"},
			dialect: obliquetypes.ProfileBase,
			want:    "one",
		},
		{
			name:    "instruct with stops is passed through",
			params:  selfParams("carol"),
			dialect: obliquetypes.ProfileInstruct,
			stops:   true,
			want:    "<carol> one\n<alice> two",
		},
		{
			name:    "custom name is the target",
			params:  obliquetypes.SessionParameters{TargetIdentity: "x", CustomName: "carol"},
			dialect: obliquetypes.ProfileBase,
			want:    "one",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := p.Process(raw, tt.params, tt.dialect, tt.stops)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestProcess_InstructWithoutStops(t *testing.T) {
	p := NewProcessor()

	out, err := p.Process("carol: first line\nstill me\nalice: interrupt", selfParams("carol"), obliquetypes.ProfileInstruct, false)
	require.NoError(t, err)
	assert.Equal(t, "first line\nstill me", out)
}

func TestProcess_LeadingLinesBelongToTarget(t *testing.T) {
	p := NewProcessor()

	out, err := p.Process("continuing my thought\n<alice> reply", selfParams("carol"), obliquetypes.ProfileBase, false)
	require.NoError(t, err)
	assert.Equal(t, "continuing my thought", out)

	suppressed := selfParams("carol")
	suppressed.SuppressName = true
	out, err = p.Process("someone else\n<carol> later", suppressed, obliquetypes.ProfileBase, false)
	require.NoError(t, err)
	assert.Equal(t, "later", out)
}

func TestProcess_FallsBackToCleanedText(t *testing.T) {
	p := NewProcessor()

	out, err := p.Process("<alice> only alice speaks", selfParams("carol"), obliquetypes.ProfileBase, false)
	require.NoError(t, err)
	assert.Equal(t, "<alice> only alice speaks", out)
}

func TestProcess_Empty(t *testing.T) {
	p := NewProcessor()

	for _, raw := range []string{"", "   ", "</stop>everything after", "[oblique]", "\t\\n\t"} {
		_, err := p.Process(raw, selfParams("carol"), obliquetypes.ProfileBase, false)
		assert.ErrorIs(t, err, obliquetypes.ErrEmptyCompletion, raw)
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"stop marker", "keep</stop>drop", "keep"},
		{"earliest marker wins", "a<|eot_id|>b</stop>c", "a"},
		{"escaped newline", `one\ntwo`, "one\ntwo"},
		{"identity tag", "hi [oblique] there", "hi there"},
		{"identity tag with suffix", "hi [Oblique:carol]", "hi"},
		{"whitespace", "  a \t  b  \n  c  ", "a b\n c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Clean(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Clean(got))
		})
	}
}

func TestParseColonLine(t *testing.T) {
	tests := []struct {
		line    string
		ok      bool
		speaker string
	}{
		{"carol: hi", true, "carol"},
		{"Mary Jane: hello", true, "Mary Jane"},
		{"12:30 meeting", false, ""},
		{"note: ", false, ""},
		{"this sentence is far too long before it reaches: a colon", false, ""},
		{"http://example.com", false, ""},
		{"see https://example.com", false, ""},
		{"bob:hi", true, "bob"},
		{"a*b: nope", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			sl, ok := parseColonLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.speaker, sl.speaker)
			}
		})
	}
}
