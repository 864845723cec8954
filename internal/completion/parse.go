package completion

import (
	"fmt"

	"github.com/tidwall/gjson"

	"oblique/pkg/obliquetypes"
)

// rateLimitCode is the in-band error code that triggers the short retry.
const rateLimitCode = "429"

// classify inspects a 200 response body for an in-band error object. The code
// may arrive as a number or a string.
func classify(body []byte) error {
	if !gjson.ValidBytes(body) {
		return fmt.Errorf("%w: response is not valid JSON", obliquetypes.ErrUpstream)
	}
	apiErr := gjson.GetBytes(body, "error")
	if !apiErr.Exists() || apiErr.Type == gjson.Null {
		return nil
	}
	code := apiErr.Get("code").String()
	msg := apiErr.Get("message").String()
	if code == rateLimitCode {
		return fmt.Errorf("%w: %s", obliquetypes.ErrRateLimited, msg)
	}
	return fmt.Errorf("%w: code %s: %s", obliquetypes.ErrUpstream, code, msg)
}

// extractChoices pulls the text of every choice in order.
func extractChoices(body []byte, dialect obliquetypes.ProfileType) []string {
	path := "choices.#.text"
	if dialect == obliquetypes.ProfileInstruct {
		path = "choices.#.message.content"
	}
	results := gjson.GetBytes(body, path).Array()
	texts := make([]string, 0, len(results))
	for _, r := range results {
		texts = append(texts, r.String())
	}
	return texts
}
