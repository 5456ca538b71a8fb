package e2e_harness

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lychee-technology/formtab"
	"github.com/lychee-technology/formtab/internal/ddl"
)

func choiceID(v int64) *int64 { return &v }

// DisclosureSpec is a root form with a discriminator and a repeated sub-form.
func DisclosureSpec() *formtab.FormSpec {
	return &formtab.FormSpec{
		Name: "disclosure",
		Attributes: []formtab.AttributeSpec{
			{Name: "company_name", Type: formtab.AttributeTypeText},
			{
				Name: "data_model",
				Type: formtab.AttributeTypeSingleChoice,
				Choices: []formtab.ChoiceSpec{
					{ID: choiceID(10), Label: "IFRS S2"},
					{ID: choiceID(11), Label: "ESRS E1"},
				},
			},
			{
				Name: "emissions",
				Type: formtab.AttributeTypeRepeated,
				Form: &formtab.FormSpec{
					Name: "emission_row",
					Attributes: []formtab.AttributeSpec{
						{
							Name: "scope",
							Type: formtab.AttributeTypeSingleChoice,
							Choices: []formtab.ChoiceSpec{
								{ID: choiceID(1), Label: "Scope 1"},
								{ID: choiceID(2), Label: "Scope 2"},
							},
						},
						{Name: "scope_amount", Type: formtab.AttributeTypeFloatOrNull},
					},
				},
			},
		},
	}
}

// Emission is one emission_row of a seeded submission.
type Emission struct {
	Scope  int64
	Amount float64
}

// Submission is one seeded object with its root row.
type Submission struct {
	Company   string
	DataModel int64
	Emissions []Emission
}

// SeedSubmissions inserts one organization and one active object per entry,
// with the physical rows of the disclosure form. It returns the object ids
// in insertion order.
func SeedSubmissions(ctx context.Context, db *sql.DB, tables formtab.TableNames, viewID int64, subs []Submission) ([]int64, error) {
	ids := make([]int64, 0, len(subs))
	for i, s := range subs {
		var orgID, objID int64
		err := db.QueryRowContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (legal_name, lei, jurisdiction, sics_sector) VALUES ($1, $2, 'DE', 'Energy') RETURNING id`, ddl.Quote(tables.Organizations)),
			s.Company, fmt.Sprintf("LEI%05d", i)).Scan(&orgID)
		if err != nil {
			return nil, fmt.Errorf("insert organization: %w", err)
		}
		err = db.QueryRowContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (form_view_id, organization_id, status, reporting_year) VALUES ($1, $2, 'active', 2024) RETURNING id`, ddl.Quote(tables.Objects)),
			viewID, orgID).Scan(&objID)
		if err != nil {
			return nil, fmt.Errorf("insert object: %w", err)
		}

		var slot any
		if len(s.Emissions) > 0 {
			slot = 1
			for _, e := range s.Emissions {
				_, err := db.ExecContext(ctx,
					`INSERT INTO "emission_row_heritable" (obj_id, value_id, "scope", "scope_amount") VALUES ($1, 1, $2, ROW($3::real, FALSE)::"formtab_float_or_null")`,
					objID, e.Scope, e.Amount)
				if err != nil {
					return nil, fmt.Errorf("insert emission: %w", err)
				}
			}
		}
		_, err = db.ExecContext(ctx,
			`INSERT INTO "disclosure" (obj_id, "company_name", "data_model", "emissions") VALUES ($1, $2, $3, $4)`,
			objID, s.Company, s.DataModel, slot)
		if err != nil {
			return nil, fmt.Errorf("insert root row: %w", err)
		}
		ids = append(ids, objID)
	}
	return ids, nil
}
