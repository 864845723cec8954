package shell

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"oblique/pkg/obliquetypes"
)

// Keyword starts a generation from a chat line.
const Keyword = "obliqueme"

// KeywordOptions are the options accepted after the keyword.
type KeywordOptions struct {
	SuppressName bool
	CustomName   string
	Temperature  *float64
	Seed         string
	Full         bool
	Model        string
}

// ParseKeywordOptions parses `[-s] [-n name] [-p temp] [--full] [-m model]
// [--seed text | text...]`. Trailing words form the seed. An unparseable
// temperature is ignored rather than rejected.
func ParseKeywordOptions(args []string) (KeywordOptions, error) {
	fs := pflag.NewFlagSet(Keyword, pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.Usage = func() {}

	var opts KeywordOptions
	var temp string
	fs.BoolVarP(&opts.SuppressName, "suppress", "s", false, "do not open a turn for the target name")
	fs.StringVarP(&opts.CustomName, "name", "n", "", "write as this name")
	fs.StringVarP(&temp, "temperature", "p", "", "sampling temperature")
	fs.StringVar(&opts.Seed, "seed", "", "text the turn starts with")
	fs.BoolVar(&opts.Full, "full", false, "keep the whole completion")
	fs.StringVarP(&opts.Model, "model", "m", "", "model profile key")

	if err := fs.Parse(args); err != nil {
		return KeywordOptions{}, fmt.Errorf("%s: %w", Keyword, err)
	}

	if temp != "" {
		if v, err := strconv.ParseFloat(temp, 64); err == nil && v >= 0 && v <= 2 {
			opts.Temperature = &v
		}
	}
	if rest := strings.Join(fs.Args(), " "); rest != "" && opts.Seed == "" {
		opts.Seed = rest
	}
	return opts, nil
}

// Parameters builds session parameters for a target identity.
func (o KeywordOptions) Parameters(target string) obliquetypes.SessionParameters {
	mode := obliquetypes.ModeSelf
	if o.Full {
		mode = obliquetypes.ModeFull
	}
	return obliquetypes.SessionParameters{
		Mode:           mode,
		Seed:           o.Seed,
		SuppressName:   o.SuppressName,
		CustomName:     o.CustomName,
		Temperature:    o.Temperature,
		TargetIdentity: target,
		ModelKey:       o.Model,
	}
}
