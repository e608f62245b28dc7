package delivery

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/http"
	"net/mail"
	"net/textproto"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GmailProvider sends through the Gmail API as the authorized mailbox.
type GmailProvider struct {
	from     mail.Address
	endpoint string
	base     *http.Client
}

// GmailOption customises a GmailProvider.
type GmailOption func(*GmailProvider)

// WithEndpoint points the provider at another API root, e.g. a test server.
func WithEndpoint(endpoint string) GmailOption {
	return func(p *GmailProvider) { p.endpoint = endpoint }
}

// WithHTTPClient sets the transport used underneath the bearer token.
func WithHTTPClient(hc *http.Client) GmailOption {
	return func(p *GmailProvider) { p.base = hc }
}

func NewGmailProvider(fromName, fromAddress string, opts ...GmailOption) *GmailProvider {
	p := &GmailProvider{from: mail.Address{Name: fromName, Address: fromAddress}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *GmailProvider) Send(ctx context.Context, accessToken string, msg Message) (string, error) {
	raw, err := BuildMIME(p.from, msg)
	if err != nil {
		return "", fmt.Errorf("failed to build message: %w", err)
	}

	clientCtx := ctx
	if p.base != nil {
		clientCtx = context.WithValue(ctx, oauth2.HTTPClient, p.base)
	}
	hc := oauth2.NewClient(clientCtx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create gmail service: %w", err)
	}

	sent, err := svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		return "", translateGmailError(err)
	}
	return sent.Id, nil
}

func translateGmailError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	pe := &ProviderError{StatusCode: gerr.Code, Message: gerr.Message, Err: err}
	if len(gerr.Errors) > 0 {
		pe.Reason = gerr.Errors[0].Reason
	}
	return pe
}

// BuildMIME renders a multipart/alternative message with a plain text part
// followed by an HTML part.
func BuildMIME(from mail.Address, msg Message) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=UTF-8", msg.TextBody},
		{"text/html; charset=UTF-8", msg.HTMLBody},
	}
	for _, part := range parts {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, err
		}
		qp := quotedprintable.NewWriter(w)
		if _, err := qp.Write([]byte(part.content)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "From: %s\r\n", from.String())
	fmt.Fprintf(&out, "To: %s\r\n", msg.To)
	fmt.Fprintf(&out, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", msg.Subject))
	out.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&out, "Content-Type: multipart/alternative; boundary=%q\r\n", mw.Boundary())
	out.WriteString("\r\n")
	out.Write(body.Bytes())
	return out.Bytes(), nil
}
