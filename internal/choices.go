package internal

import (
	"context"

	"github.com/lychee-technology/formtab"
)

type choiceKey struct {
	id       int64
	language string
}

// assignChoiceIDs turns specs into rows of set setID. Explicit ids are kept;
// missing ids count up from max(FirstAutoChoiceID, maxExisting+1), skipping
// past any explicit id in the same batch that lies in the automatic range.
func assignChoiceIDs(setID int64, specs []formtab.ChoiceSpec, maxExisting int64, defaultLanguage string) ([]formtab.Choice, error) {
	next := max(formtab.FirstAutoChoiceID, maxExisting+1)
	for _, s := range specs {
		if s.ID != nil && *s.ID >= next {
			next = *s.ID + 1
		}
	}

	seen := make(map[choiceKey]struct{}, len(specs))
	out := make([]formtab.Choice, 0, len(specs))
	for _, s := range specs {
		var id int64
		if s.ID != nil {
			id = *s.ID
		} else {
			id = next
			next++
		}
		c := formtab.Choice{
			SetID:    setID,
			ChoiceID: id,
			Label:    s.Label,
			Order:    s.Order,
			Language: formtab.CanonicalLanguage(s.Language, defaultLanguage),
		}
		key := choiceKey{c.ChoiceID, c.Language}
		if _, dup := seen[key]; dup {
			return nil, duplicateChoice(c)
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

func insertChoices(ctx context.Context, store MetadataStore, setID int64, specs []formtab.ChoiceSpec, defaultLanguage string) error {
	maxExisting, err := store.MaxChoiceID(ctx, setID, formtab.FirstAutoChoiceID)
	if err != nil {
		return err
	}
	rows, err := assignChoiceIDs(setID, specs, maxExisting, defaultLanguage)
	if err != nil {
		return err
	}
	for _, c := range rows {
		if err := store.InsertChoice(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func newChoiceSet(ctx context.Context, bc *buildContext, specs []formtab.ChoiceSpec) (int64, error) {
	setID, err := bc.store.CreateChoiceSet(ctx)
	if err != nil {
		return 0, err
	}
	if err := insertChoices(ctx, bc.store, setID, specs, bc.cfg.DefaultLanguage); err != nil {
		return 0, err
	}
	return setID, nil
}
