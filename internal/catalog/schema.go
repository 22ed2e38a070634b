package catalog

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"sagra-pos/internal/models"
)

const menuItemSchema = `
#MenuItem: {
	key:          string & !=""
	display_name: [string, ...string]
	description?: string
	color?:       string
	unit_price_cents: int & >=0
	daily_portion_limit?: int & >=0
	critical_threshold?:  int & >=0
	display_order: int
}
`

var (
	schemaMu   sync.Mutex
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(menuItemSchema)
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compiling menu schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#MenuItem"))
	})
	return schemaCtx, schemaDef, schemaErr
}

// Validate checks a mapped item against the menu schema.
func Validate(item models.MenuItem) error {
	ctx, def, err := loadSchema()
	if err != nil {
		return err
	}

	fields := map[string]any{
		"key":              item.Key,
		"display_name":     item.DisplayName,
		"unit_price_cents": item.UnitPriceCents,
		"display_order":    item.DisplayOrder,
	}
	if item.Description != "" {
		fields["description"] = item.Description
	}
	if item.Color != "" {
		fields["color"] = item.Color
	}
	if item.DailyPortionLimit != nil {
		fields["daily_portion_limit"] = *item.DailyPortionLimit
	}
	if item.CriticalThreshold != nil {
		fields["critical_threshold"] = *item.CriticalThreshold
	}

	schemaMu.Lock()
	defer schemaMu.Unlock()

	v := def.Unify(ctx.Encode(fields))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("menu item %q: %w", item.Key, err)
	}
	return nil
}
