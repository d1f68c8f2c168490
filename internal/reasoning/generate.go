package reasoning

import (
	"context"
	"encoding/json"
)

// strictSuffix is appended to the system prompt on the single parse retry.
const strictSuffix = "\n\nIMPORTANT: your previous reply was not valid JSON." +
	" Respond with exactly one JSON value matching the schema. No prose, no markdown."

// GenerateJSON runs the request and unmarshals the result into out. A parse
// failure (unextractable or schema-mismatched payload) is retried exactly
// once with a stricter prompt; a second failure surfaces as the workflow
// failure it is. Transport errors pass through unchanged so the queue can
// apply its retry policy.
func GenerateJSON(ctx context.Context, p Provider, req Request, out any) error {
	raw, err := p.Generate(ctx, req)
	if err == nil {
		if uerr := json.Unmarshal(raw, out); uerr == nil {
			return nil
		} else {
			err = NewParseError("reasoning result did not match expected shape", uerr)
		}
	}
	if !IsParseError(err) {
		return err
	}

	strict := req
	strict.System += strictSuffix
	raw, err = p.Generate(ctx, strict)
	if err != nil {
		return err
	}
	if uerr := json.Unmarshal(raw, out); uerr != nil {
		return NewParseError("reasoning result did not match expected shape after strict retry", uerr)
	}
	return nil
}
