package auth

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/keystone/internal/templates/layouts"
)

// formField is one labelled input of an auth form.
type formField struct {
	Name        string
	Type        string
	Placeholder string
	Autofocus   bool
}

// authForm renders a POST form with the CSRF token and the given fields.
// Submitted values are never echoed back, so passwords do not round-trip.
func authForm(action, submit string, fields []formField) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		out := `<form action="` + templ.EscapeString(action) + `" method="post">` +
			`<input type="hidden" name="csrf_token" value="` + templ.EscapeString(layouts.GetCSRFToken(ctx)) + `">`
		for _, f := range fields {
			out += `<div class="form-group"><input autocomplete="off" class="form-control" name="` + f.Name +
				`" placeholder="` + templ.EscapeString(f.Placeholder) + `" type="` + f.Type + `"`
			if f.Autofocus {
				out += ` autofocus`
			}
			out += `></div>`
		}
		out += `<button class="btn" type="submit">` + templ.EscapeString(submit) + `</button></form>`
		_, err := io.WriteString(w, out)
		return err
	})
}

// LoginPage renders the login form.
func LoginPage() templ.Component {
	return layouts.Base("Log In", authForm("/login", "Log In", []formField{
		{Name: "username", Type: "text", Placeholder: "Username", Autofocus: true},
		{Name: "password", Type: "password", Placeholder: "Password"},
	}))
}

// RegisterPage renders the registration form.
func RegisterPage() templ.Component {
	return layouts.Base("Register", authForm("/register", "Register", []formField{
		{Name: "username", Type: "text", Placeholder: "Username", Autofocus: true},
		{Name: "password", Type: "password", Placeholder: "Password"},
		{Name: "confirmation", Type: "password", Placeholder: "Confirm Password"},
	}))
}

// ChangePasswordPage renders the change-password form.
func ChangePasswordPage() templ.Component {
	return layouts.Base("Change Password", authForm("/change_password", "Change Password", []formField{
		{Name: "old_password", Type: "password", Placeholder: "Old Password", Autofocus: true},
		{Name: "new_password", Type: "password", Placeholder: "New Password"},
		{Name: "confirmation", Type: "password", Placeholder: "Confirm New Password"},
	}))
}
