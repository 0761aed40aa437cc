package layouts

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// navLink is one entry of the top navigation bar.
type navLink struct {
	Href  string
	Label string
}

var (
	guestNav = []navLink{{"/register", "Register"}, {"/login", "Log In"}}
	userNav  = []navLink{{"/change_password", "Change Password"}, {"/logout", "Log Out"}}
)

// Base wraps page content in the HTML shell: navigation that depends on
// the login state, and the alert for the flash message consumed by this
// render.
func Base(title string, content templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
			`<meta name="viewport" content="initial-scale=1, width=device-width">`+
			`<title>Keystone: `+templ.EscapeString(title)+`</title></head><body>`); err != nil {
			return err
		}

		if err := nav(ctx, w); err != nil {
			return err
		}

		if msg := GetFlashError(ctx); msg != "" {
			if _, err := io.WriteString(w, `<header><div class="alert" role="alert">`+
				templ.EscapeString(msg)+`</div></header>`); err != nil {
				return err
			}
		}

		if _, err := io.WriteString(w, `<main>`); err != nil {
			return err
		}
		if err := content.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</main></body></html>`)
		return err
	})
}

func nav(ctx context.Context, w io.Writer) error {
	links := guestNav
	if IsAuthenticated(ctx) {
		links = userNav
	}
	active := GetActivePath(ctx)

	out := `<nav><a class="brand" href="/">Keystone</a><ul>`
	for _, l := range links {
		class := ""
		if l.Href == active {
			class = ` class="active"`
		}
		out += `<li><a href="` + templ.EscapeString(l.Href) + `"` + class + `>` + templ.EscapeString(l.Label) + `</a></li>`
	}
	out += `</ul></nav>`
	_, err := io.WriteString(w, out)
	return err
}
