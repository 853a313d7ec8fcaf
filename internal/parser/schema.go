package parser

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"
)

// updateSchema holds the item shapes. Text fields may be absent or null; the parser substitutes
// placeholders for them. Only the primary item carries the authoritative date, so a translation
// may omit it or send anything there.
const updateSchema = `
#Translation: {
	short_description?: string | null
	long_description?:  string | null
	source_url?:        string | null
	...
}

#Update: {
	event_date:         string
	short_description?: string | null
	long_description?:  string | null
	source_url?:        string | null
	...
}
`

const (
	defUpdate      = "#Update"
	defTranslation = "#Translation"
)

type itemSchema struct {
	mu   sync.Mutex
	ctx  *cue.Context
	defs map[string]cue.Value
}

func newItemSchema() (*itemSchema, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(updateSchema, cue.Filename("update.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile update schema: %w", err)
	}
	defs := map[string]cue.Value{}
	for _, name := range []string{defUpdate, defTranslation} {
		def := root.LookupPath(cue.ParsePath(name))
		if !def.Exists() {
			return nil, fmt.Errorf("update schema has no %s definition", name)
		}
		defs[name] = def
	}
	return &itemSchema{ctx: ctx, defs: defs}, nil
}

func mustItemSchema() *itemSchema {
	s, err := newItemSchema()
	if err != nil {
		panic(err)
	}
	return s
}

// Validate unifies one raw JSON item with the named definition and requires the result to be
// concrete.
func (s *itemSchema) Validate(def string, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema, ok := s.defs[def]
	if !ok {
		return fmt.Errorf("unknown schema definition %s", def)
	}
	expr, err := cuejson.Extract("item.json", raw)
	if err != nil {
		return err
	}
	item := s.ctx.BuildExpr(expr)
	if err := item.Err(); err != nil {
		return err
	}
	unified := schema.Unify(item)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return err
	}
	return nil
}
