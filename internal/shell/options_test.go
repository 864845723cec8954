package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oblique/pkg/obliquetypes"
)

func TestParseKeywordOptions(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want func(t *testing.T, o KeywordOptions)
	}{
		{
			name: "no options",
			args: nil,
			want: func(t *testing.T, o KeywordOptions) {
				assert.Equal(t, KeywordOptions{}, o)
			},
		},
		{
			name: "all flags",
			args: []string{"-s", "-n", "bob", "-p", "1.2", "-m", "llama-405b-instruct", "--full"},
			want: func(t *testing.T, o KeywordOptions) {
				assert.True(t, o.SuppressName)
				assert.Equal(t, "bob", o.CustomName)
				require.NotNil(t, o.Temperature)
				assert.InDelta(t, 1.2, *o.Temperature, 1e-9)
				assert.Equal(t, "llama-405b-instruct", o.Model)
				assert.True(t, o.Full)
			},
		},
		{
			name: "trailing words seed",
			args: []string{"-n", "bob", "well", "actually"},
			want: func(t *testing.T, o KeywordOptions) {
				assert.Equal(t, "well actually", o.Seed)
			},
		},
		{
			name: "explicit seed wins",
			args: []string{"--seed", "so", "ignored"},
			want: func(t *testing.T, o KeywordOptions) {
				assert.Equal(t, "so", o.Seed)
			},
		},
		{
			name: "unparseable temperature ignored",
			args: []string{"-p", "hot"},
			want: func(t *testing.T, o KeywordOptions) {
				assert.Nil(t, o.Temperature)
			},
		},
		{
			name: "out of range temperature ignored",
			args: []string{"-p", "3"},
			want: func(t *testing.T, o KeywordOptions) {
				assert.Nil(t, o.Temperature)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := ParseKeywordOptions(tt.args)
			require.NoError(t, err)
			tt.want(t, o)
		})
	}
}

func TestParseKeywordOptions_UnknownFlag(t *testing.T) {
	_, err := ParseKeywordOptions([]string{"--bogus"})
	assert.Error(t, err)
}

func TestKeywordOptions_Parameters(t *testing.T) {
	o, err := ParseKeywordOptions([]string{"--full", "-n", "bob"})
	require.NoError(t, err)

	p := o.Parameters("alice")
	assert.Equal(t, obliquetypes.ModeFull, p.Mode)
	assert.Equal(t, "alice", p.TargetIdentity)
	assert.Equal(t, "bob", p.DisplayName())

	p = KeywordOptions{}.Parameters("alice")
	assert.Equal(t, obliquetypes.ModeSelf, p.Mode)
	assert.Equal(t, "alice", p.DisplayName())
}
