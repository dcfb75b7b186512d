package manifest

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// ErrInvalid wraps every schema violation reported by Validate.
var ErrInvalid = errors.New("invalid manifest")

// schemaSource constrains a decoded manifest. Field names follow the
// TOML keys.
const schemaSource = `
#Manifest: {
	project: {
		name:  string
		entry: "" | =~"\\.(cy|js)$"
	}
	engine: {
		"max-steps":   int & >=0
		"stack-limit": int & >=0
		trace:         bool
	}
	cache: {
		enabled: bool
		path:    string
		if enabled {
			path: !=""
		}
	}
	server: {
		addr:        string
		"grpc-addr": string
	}
}
`

// Validate checks m against the manifest schema.
func (m *Manifest) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("curly.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("manifest schema: %w", err)
	}

	value := ctx.Encode(m)
	if err := value.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Manifest")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, firstError(err))
	}
	return nil
}

// firstError flattens a CUE error list to its first message.
func firstError(err error) string {
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		return errs[0].Error()
	}
	return err.Error()
}
