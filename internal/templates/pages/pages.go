// Package pages holds the full-page Templ components that are not owned by
// a single plugin: the home page and the error page.
package pages

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/keystone/internal/templates/layouts"
)

// IndexPage is the protected home page.
func IndexPage(username string) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<h1>Welcome, `+templ.EscapeString(username)+`</h1>`+
			`<p>You are logged in.</p>`)
		return err
	})
	return layouts.Base("Home", body)
}

// ErrorPage renders a status code and a message that is safe to show.
func ErrorPage(code int, message string) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<section class="error"><h1>`+strconv.Itoa(code)+`</h1>`+
			`<p>`+templ.EscapeString(message)+`</p><a href="/">Back to home</a></section>`)
		return err
	})
	return layouts.Base("Error", body)
}
