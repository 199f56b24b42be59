package app

import (
	"bytes"
	htmltemplate "html/template"
	texttemplate "text/template"

	"citefleurie/pkg/domain"
)

type contactTemplate struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

type contactEmailData struct {
	Site string
	domain.ContactMessage
}

var notificationTemplate = contactTemplate{
	html: htmltemplate.Must(htmltemplate.New("notification").Parse(`<!DOCTYPE html>
<html lang="fr">
<body style="font-family: sans-serif; color: #2c3e50;">
  <h2>Nouveau message de contact</h2>
  <p>Vous avez reçu un nouveau message via le formulaire de contact de {{.Site}}.</p>
  <p><strong>Nom :</strong> {{.Name}}<br>
  <strong>Email :</strong> <a href="mailto:{{.Email}}">{{.Email}}</a>
  {{- if .Phone}}<br><strong>Téléphone :</strong> {{.Phone}}{{end}}
  {{- if .Subject}}<br><strong>Sujet :</strong> {{.Subject}}{{end}}</p>
  <p><strong>Message :</strong></p>
  <p style="white-space: pre-wrap;">{{.Message}}</p>
</body>
</html>`)),
	text: texttemplate.Must(texttemplate.New("notification").Parse(`Nouveau message de contact

Nom: {{.Name}}
Email: {{.Email}}
{{- if .Phone}}
Téléphone: {{.Phone}}{{end}}
{{- if .Subject}}
Sujet: {{.Subject}}{{end}}

Message:
{{.Message}}
`)),
}

var confirmationTemplate = contactTemplate{
	html: htmltemplate.Must(htmltemplate.New("confirmation").Parse(`<p>Bonjour {{.Name}},</p>
<p>Merci de nous avoir contactés. Nous avons bien reçu votre message et nous vous répondrons dans les plus brefs délais.</p>
<p>Cordialement,<br>L'équipe de {{.Site}}</p>`)),
	text: texttemplate.Must(texttemplate.New("confirmation").Parse(`Bonjour {{.Name}},

Merci de nous avoir contactés. Nous avons bien reçu votre message et nous vous répondrons dans les plus brefs délais.

Cordialement,
L'équipe de {{.Site}}
`)),
}

func renderContactEmail(tpl contactTemplate, site string, msg domain.ContactMessage) (string, string, error) {
	data := contactEmailData{Site: site, ContactMessage: msg}
	var htmlBuf, textBuf bytes.Buffer
	if err := tpl.html.Execute(&htmlBuf, data); err != nil {
		return "", "", err
	}
	if err := tpl.text.Execute(&textBuf, data); err != nil {
		return "", "", err
	}
	return htmlBuf.String(), textBuf.String(), nil
}
