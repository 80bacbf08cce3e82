package notify

import (
	"bytes"
	"fmt"
	"html/template"
	texttemplate "text/template"
)

var resetHTML = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <p>Hello {{if .Name}}{{.Name}}{{else}}there{{end}},</p>
  <p>We received a request to reset the password for your HR account.</p>
  <p><a href="{{.Link}}" style="background:#2563eb;color:#fff;padding:10px 16px;border-radius:4px;text-decoration:none;">Reset password</a></p>
  <p>This link expires in 15 minutes. If you did not request a reset, you can ignore this email.</p>
</body>
</html>`))

var resetText = texttemplate.Must(texttemplate.New("reset").Parse(`Hello {{if .Name}}{{.Name}}{{else}}there{{end}},

We received a request to reset the password for your HR account.
Open the link below to choose a new password:

{{.Link}}

This link expires in 15 minutes. If you did not request a reset, you can ignore this email.
`))

var welcomeHTML = template.Must(template.New("welcome").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <p>Hello {{.Name}},</p>
  <p>An account with the role <strong>{{.Role}}</strong> has been created for you.</p>
  <p>Email: {{.Email}}<br>Temporary password: <code>{{.Password}}</code></p>
  <p>Please sign in and change your password.</p>
</body>
</html>`))

var welcomeText = texttemplate.Must(texttemplate.New("welcome").Parse(`Hello {{.Name}},

An account with the role {{.Role}} has been created for you.

Email: {{.Email}}
Temporary password: {{.Password}}

Please sign in and change your password.
`))

func renderPasswordReset(name, link string) (string, string, error) {
	data := struct{ Name, Link string }{name, link}
	var html, text bytes.Buffer
	if err := resetHTML.Execute(&html, data); err != nil {
		return "", "", fmt.Errorf("render reset email: %w", err)
	}
	if err := resetText.Execute(&text, data); err != nil {
		return "", "", fmt.Errorf("render reset email: %w", err)
	}
	return html.String(), text.String(), nil
}

func renderWelcome(name, email, role, password string) (string, string, error) {
	data := struct{ Name, Email, Role, Password string }{name, email, role, password}
	var html, text bytes.Buffer
	if err := welcomeHTML.Execute(&html, data); err != nil {
		return "", "", fmt.Errorf("render welcome email: %w", err)
	}
	if err := welcomeText.Execute(&text, data); err != nil {
		return "", "", fmt.Errorf("render welcome email: %w", err)
	}
	return html.String(), text.String(), nil
}
