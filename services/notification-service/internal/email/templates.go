package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

// Data is what every notification template can reference.
type Data struct {
	RecipientName    string
	Title            string
	Body             string
	PetName          string
	Date             string
	TimeSlot         string
	Address          string
	ProposedDate     string
	ProposedTimeSlot string
	Message          string
	Reason           string
	TotalCents       int64
	Currency         string
	AppointmentURL   string
}

func (d Data) Amount() string {
	if d.TotalCents <= 0 {
		return ""
	}
	return fmt.Sprintf("%d.%02d %s", d.TotalCents/100, d.TotalCents%100, strings.ToUpper(d.Currency))
}

// Templates holds one parsed template per notification kind, each sharing
// the base layout. Kinds without a file use the generic template.
type Templates struct {
	byKind map[string]*template.Template
}

func LoadTemplates() (*Templates, error) {
	base, err := template.ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, err
	}
	t := &Templates{byKind: map[string]*template.Template{}}
	for _, e := range entries {
		name := e.Name()
		if name == "layout.html" {
			continue
		}
		clone, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		t.byKind[strings.TrimSuffix(name, ".html")] = clone
	}
	if _, ok := t.byKind["generic"]; !ok {
		return nil, fmt.Errorf("generic template missing")
	}
	return t, nil
}

// Render builds the subject and both bodies for a kind. To is left empty.
func (t *Templates) Render(kind string, data Data) (Message, error) {
	tmpl, ok := t.byKind[kind]
	if !ok {
		tmpl = t.byKind["generic"]
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", kind, err)
	}
	subject := "VetCall"
	if data.Title != "" {
		subject = "VetCall: " + data.Title
	}
	text := data.Body
	if data.AppointmentURL != "" {
		text += "\n\n" + data.AppointmentURL
	}
	return Message{Subject: subject, HTML: buf.String(), Text: text}, nil
}

func (t *Templates) Kinds() []string {
	out := make([]string, 0, len(t.byKind))
	for k := range t.byKind {
		out = append(out, k)
	}
	return out
}
