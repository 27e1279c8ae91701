package backoffice

import (
	"context"
	"strings"
	"time"

	"git.cscs.ch/openchami/backoffice/internal/editor"
	"git.cscs.ch/openchami/backoffice/pkg/types"
)

// Users is the users screen.
type Users = Binding[types.User, types.UserDraft]

// NewUsers binds the user gateway. The password is write-only: it is never
// shown, required on create, and sent on edit only when typed in.
func NewUsers(gw Gateway[types.User, types.UserDraft, types.UserPatch], opts Options) (*Users, error) {
	v := editor.NewValidator()

	def := Definition[types.User, types.UserDraft]{
		Name: "users",
		Kind: "user",
		ID:   func(u types.User) int64 { return u.ID },
		Columns: []Column[types.User]{
			{Header: "ID", Value: func(u types.User, _ time.Time) string { return idString(u.ID) }},
			{Header: "NAME", Value: func(u types.User, _ time.Time) string { return truncate(u.FullName(), 32) }},
			{Header: "EMAIL", Value: func(u types.User, _ time.Time) string { return u.Email }},
			{Header: "CREATED", Value: func(u types.User, now time.Time) string { return Ago(u.CreatedAt, now) }},
			{Header: "MODIFIED", Value: func(u types.User, now time.Time) string { return Ago(u.ModifiedAt, now) }},
		},
		Details: func(u types.User, now time.Time) []Detail {
			role := u.Role
			if role == "" {
				role = "-"
			}
			return []Detail{
				{Label: "id", Value: idString(u.ID)},
				{Label: "firstname", Value: u.Firstname},
				{Label: "lastname", Value: u.Lastname},
				{Label: "email", Value: u.Email},
				{Label: "role", Value: role},
				{Label: "created", Value: Ago(u.CreatedAt, now)},
				{Label: "modified", Value: Ago(u.ModifiedAt, now)},
			}
		},
		Fields: []Field[types.UserDraft]{
			{
				Name: "firstname", Required: true,
				Get: func(d types.UserDraft) string { return d.Firstname },
				Set: func(d types.UserDraft, s string) (types.UserDraft, error) {
					d.Firstname = strings.TrimSpace(s)
					return d, nil
				},
			},
			{
				Name: "lastname", Required: true,
				Get: func(d types.UserDraft) string { return d.Lastname },
				Set: func(d types.UserDraft, s string) (types.UserDraft, error) {
					d.Lastname = strings.TrimSpace(s)
					return d, nil
				},
			},
			{
				Name: "email", Required: true,
				Get: func(d types.UserDraft) string { return d.Email },
				Set: func(d types.UserDraft, s string) (types.UserDraft, error) {
					d.Email = strings.ToLower(strings.TrimSpace(s))
					return d, nil
				},
			},
			{
				Name: "password", RequiredOnCreate: true,
				Get: func(d types.UserDraft) string {
					if d.Password == "" {
						return "-"
					}
					return "********"
				},
				Set: func(d types.UserDraft, s string) (types.UserDraft, error) {
					d.Password = s
					return d, nil
				},
			},
		},
		Changes: func(mode editor.Mode, baseline, draft types.UserDraft) map[string]any {
			if mode == editor.ModeEdit {
				return asChanges(userPatch(baseline, draft))
			}
			return asChanges(draft)
		},
	}

	eb := editor.Binding[types.User, types.UserDraft]{
		Blank: func() types.UserDraft { return types.UserDraft{} },
		FromResource: func(u types.User) types.UserDraft {
			return types.UserDraft{Firstname: u.Firstname, Lastname: u.Lastname, Email: u.Email}
		},
		Validate: func(mode editor.Mode, d types.UserDraft) error {
			if err := v.Struct(d); err != nil {
				return err
			}
			if mode == editor.ModeCreate && strings.TrimSpace(d.Password) == "" {
				return editor.Invalid("password", "password is required")
			}
			return nil
		},
		Changed: func(baseline, draft types.UserDraft) bool {
			return !userPatch(baseline, draft).IsEmpty()
		},
		Create: gw.Create,
		Update: func(ctx context.Context, id int64, baseline, draft types.UserDraft) (*types.User, error) {
			return gw.Update(ctx, id, userPatch(baseline, draft))
		},
	}

	return newBinding(def, gw, eb, opts)
}

func userPatch(baseline, draft types.UserDraft) types.UserPatch {
	var patch types.UserPatch
	if draft.Firstname != baseline.Firstname {
		patch.Firstname = &draft.Firstname
	}
	if draft.Lastname != baseline.Lastname {
		patch.Lastname = &draft.Lastname
	}
	if draft.Email != baseline.Email {
		patch.Email = &draft.Email
	}
	if draft.Password != "" {
		patch.Password = &draft.Password
	}
	return patch
}
