// Package notify delivers emergency session emails off the request path.
package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/google/uuid"
)

const EmergencySubject = "Emergency Telehealth Session - Join Now"

//go:embed templates/*
var templateFS embed.FS

var (
	emergencyText = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/emergency_session.txt"))
	emergencyHTML = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/emergency_session.html"))
)

// Message is a rendered email ready for a Mailer.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

//go:generate mockgen -source=notice.go -destination=mocks/mock_mailer.go -package=mocks
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// EmergencyNotice carries everything needed to tell a patient an emergency
// session is waiting for them.
type EmergencyNotice struct {
	SessionID      uuid.UUID
	RoomID         string
	SessionURL     string
	RecipientEmail string
	PatientName    string
	ClinicianName  string
}

func (n EmergencyNotice) Render() (Message, error) {
	const op = "notify.EmergencyNotice.Render"

	var text, html bytes.Buffer
	if err := emergencyText.Execute(&text, n); err != nil {
		return Message{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := emergencyHTML.Execute(&html, n); err != nil {
		return Message{}, fmt.Errorf("%s: %w", op, err)
	}

	return Message{
		To:      n.RecipientEmail,
		Subject: EmergencySubject,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}
