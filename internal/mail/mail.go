// Package mail delivers invitation emails, directly through Resend or
// through the AMQP queue drained by cmd/mailworker.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"
)

// Invitation is one "join me on Trinit" email.
type Invitation struct {
	To         string `json:"to"`
	SenderName string `json:"senderName"`
	Token      string `json:"token"`
}

// Sender delivers invitations.
type Sender interface {
	SendInvitation(ctx context.Context, inv Invitation) error
}

// InviteURL is the link the invitee follows to accept.
func InviteURL(appURL, token string) string {
	return strings.TrimRight(appURL, "/") + "/chat?invite=" + url.QueryEscape(token)
}

var invitationTmpl = template.Must(template.New("invitation").Parse(`<div style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif; max-width: 480px; margin: 0 auto; padding: 40px 20px;">
  <h1 style="font-size: 24px; font-weight: 600; text-align: center; margin-bottom: 8px; color: #111;">You're invited!</h1>
  <p style="color: #666; text-align: center; margin-bottom: 32px; font-size: 15px;">
    <strong>{{.SenderName}}</strong> wants to share transactions with you on Trinit.
  </p>
  <div style="text-align: center; margin-bottom: 32px;">
    <a href="{{.Link}}" style="display: inline-block; background: #000; color: #fff; padding: 14px 32px; border-radius: 999px; text-decoration: none; font-size: 14px; font-weight: 500;">Accept Invitation</a>
  </div>
  <p style="color: #999; text-align: center; font-size: 12px;">
    Or copy this link: <a href="{{.Link}}" style="color: #666;">{{.Link}}</a>
  </p>
</div>
`))

// RenderInvitation returns the subject and HTML body of inv.
func RenderInvitation(appURL string, inv Invitation) (subject, body string, err error) {
	var buf bytes.Buffer
	err = invitationTmpl.Execute(&buf, struct {
		SenderName string
		Link       string
	}{inv.SenderName, InviteURL(appURL, inv.Token)})
	if err != nil {
		return "", "", fmt.Errorf("render invitation: %w", err)
	}
	return inv.SenderName + " invited you to Trinit", buf.String(), nil
}
