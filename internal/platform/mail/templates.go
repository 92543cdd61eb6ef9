// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mail

import (
	"bytes"
	"fmt"
	"html/template"
)

var (
	verifyEmailTemplate = template.Must(template.New("verify").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Verify your email address</h2>
    <p>Click the button below to confirm this address for your Bazaar account.</p>
    <p><a href="{{.URL}}" style="display:inline-block;padding:12px 20px;background:#2563eb;color:#fff;text-decoration:none;border-radius:8px;">Verify email</a></p>
    <p style="font-size: 12px; color: #6b7280;">If you did not create an account, ignore this email.</p>
  </div>
</body>
</html>`))

	resetPasswordTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Reset your password</h2>
    <p>We received a request to reset your password. This link expires in one hour.</p>
    <p><a href="{{.URL}}" style="display:inline-block;padding:12px 20px;background:#2563eb;color:#fff;text-decoration:none;border-radius:8px;">Reset password</a></p>
    <p style="font-size: 12px; color: #6b7280;">If you did not ask for a reset, you can safely ignore this email.</p>
  </div>
</body>
</html>`))
)

// VerifyEmail builds the verification message pointing at url.
func VerifyEmail(to, url string) (Message, error) {
	body, err := render(verifyEmailTemplate, url)
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Verify your email address", HTML: body}, nil
}

// ResetPassword builds the password reset message pointing at url.
func ResetPassword(to, url string) (Message, error) {
	body, err := render(resetPasswordTemplate, url)
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Password reset request", HTML: body}, nil
}

func render(tmpl *template.Template, url string) (string, error) {
	var buffer bytes.Buffer
	if err := tmpl.Execute(&buffer, struct{ URL string }{URL: url}); err != nil {
		return "", fmt.Errorf("mail: render %s template: %w", tmpl.Name(), err)
	}
	return buffer.String(), nil
}
