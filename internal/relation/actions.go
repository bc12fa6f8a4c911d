package relation

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"crud6-backend/internal/schema"
	"crud6-backend/internal/store"
)

// Binding pairs a resolved relationship with the actions of one event.
type Binding struct {
	Relationship Relationship
	Actions      *schema.ActionSet
}

// ActionContext carries the values symbolic pivot data resolves against.
type ActionContext struct {
	UserID any
	Now    time.Time
	// Input is the request payload; sync actions read their ids from it.
	Input map[string]any
}

// SubstituteValue resolves the symbolic values "now", "current_date" and
// "current_user". Anything else is returned unchanged.
func SubstituteValue(v any, ac ActionContext) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch s {
	case "now":
		return ac.Now.UTC().Format("2006-01-02 15:04:05")
	case "current_date":
		return ac.Now.UTC().Format("2006-01-02")
	case "current_user":
		return ac.UserID
	}
	return v
}

// ApplyActions runs each binding's attach, then sync, then detach, in
// binding order. The first failure aborts the run; callers roll back the
// enclosing transaction.
func ApplyActions(ctx context.Context, q store.Querier, parentID any, bindings []Binding, ac ActionContext) error {
	for _, b := range bindings {
		if b.Actions == nil {
			continue
		}
		rel := b.Relationship
		for _, a := range b.Actions.Attach {
			if a.RelatedID == nil {
				return errors.Wrapf(ErrInvalidConfiguration, "%s: attach without related_id", rel.Name())
			}
			pivot := make(map[string]any, len(a.PivotData))
			for k, v := range a.PivotData {
				pivot[k] = SubstituteValue(v, ac)
			}
			if err := rel.Attach(ctx, q, parentID, SubstituteValue(a.RelatedID, ac), pivot); err != nil {
				return errors.Wrapf(err, "%s: attach", rel.Name())
			}
		}
		if field := b.Actions.Sync; field != "" {
			if raw, present := ac.Input[field]; present {
				if err := rel.Sync(ctx, q, parentID, IDList(raw)); err != nil {
					return errors.Wrapf(err, "%s: sync", rel.Name())
				}
			}
		}
		if d := b.Actions.Detach; d != nil {
			var ids []any
			if !d.All {
				ids = d.IDs
				if ids == nil {
					ids = []any{}
				}
			}
			if err := rel.Detach(ctx, q, parentID, ids); err != nil {
				return errors.Wrapf(err, "%s: detach", rel.Name())
			}
		}
	}
	return nil
}

// IDList reads an id list from a JSON array, a comma separated string or a
// single scalar. Blank entries are dropped.
func IDList(raw any) []any {
	switch v := raw.(type) {
	case nil:
		return []any{}
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) == "" {
				continue
			}
			out = append(out, item)
		}
		return out
	case string:
		out := []any{}
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return []any{raw}
}
