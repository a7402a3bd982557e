package mailer

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"mime"
	texttemplate "text/template"
)

func mimeHeader(s string) string {
	return mime.QEncoding.Encode("utf-8", s)
}

// ReviewRequestData fills the review invitation.
type ReviewRequestData struct {
	OrderID   string
	ReviewURL string
	Products  []string
}

const reviewRequestSubject = "¿Qué te pareció tu compra en AvaShop?"

var reviewRequestHTML = htmltemplate.Must(htmltemplate.New("review_request").Parse(`<!doctype html>
<html lang="es">
<body style="font-family: sans-serif; color: #222;">
  <h2>¡Gracias por tu compra!</h2>
  <p>Tu pedido <strong>{{.OrderID}}</strong> fue confirmado. Cuéntanos qué te parecieron tus productos:</p>
  {{if .Products}}<ul>{{range .Products}}<li>{{.}}</li>{{end}}</ul>{{end}}
  <p><a href="{{.ReviewURL}}" style="background:#111;color:#fff;padding:10px 16px;text-decoration:none;">Dejar mi reseña</a></p>
  <p style="font-size:12px;color:#777;">El enlace es personal y solo puede usarse una vez.</p>
</body>
</html>`))

var reviewRequestText = texttemplate.Must(texttemplate.New("review_request_text").Parse(`¡Gracias por tu compra!

Tu pedido {{.OrderID}} fue confirmado. Cuéntanos qué te parecieron tus productos:
{{range .Products}}- {{.}}
{{end}}
Deja tu reseña aquí: {{.ReviewURL}}

El enlace es personal y solo puede usarse una vez.
`))

// ReviewRequestMessage renders the review invitation for to.
func ReviewRequestMessage(to string, data ReviewRequestData) (Message, error) {
	var html, text bytes.Buffer
	if err := reviewRequestHTML.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render review request html: %w", err)
	}
	if err := reviewRequestText.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render review request text: %w", err)
	}
	return Message{To: to, Subject: reviewRequestSubject, HTML: html.String(), Text: text.String()}, nil
}
