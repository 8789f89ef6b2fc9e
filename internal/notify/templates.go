package notify

import (
	htmltemplate "html/template"
	texttemplate "text/template"
)

const emailStyle = `
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; }
    .container { max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background: linear-gradient(135deg, #0ff4c6 0%, #00d4aa 100%); color: #0a0a0f; padding: 20px; border-radius: 8px 8px 0 0; }
    .content { background: #f9fafb; padding: 24px; border-radius: 0 0 8px 8px; }
    .field { margin-bottom: 16px; }
    .label { font-weight: 600; color: #6b7280; font-size: 12px; text-transform: uppercase; letter-spacing: 0.05em; }
    .value { margin-top: 4px; color: #111827; }
    .highlight { background: white; padding: 16px; border-radius: 8px; border-left: 4px solid #0ff4c6; margin: 16px 0; }
    .message-box { background: white; padding: 16px; border-radius: 8px; border: 1px solid #e5e7eb; margin-top: 8px; }
    .footer { margin-top: 24px; padding-top: 16px; border-top: 1px solid #e5e7eb; font-size: 12px; color: #9ca3af; }
`

var bookingHTML = htmltemplate.Must(htmltemplate.New("booking").Parse(`<!DOCTYPE html>
<html>
<head>
  <style>` + emailStyle + `</style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1 style="margin: 0; font-size: 20px;">New Consultation Booked</h1>
      <p style="margin: 8px 0 0 0; opacity: 0.9;">A new call has been scheduled</p>
    </div>
    <div class="content">
      <div class="highlight">
        <strong style="font-size: 18px;">{{.Date}}</strong><br>
        <span style="color: #6b7280;">{{.Time}} {{.ZoneLabel}}</span>
      </div>
      <div class="field">
        <div class="label">Name</div>
        <div class="value">{{.Name}}</div>
      </div>
      <div class="field">
        <div class="label">Email</div>
        <div class="value"><a href="mailto:{{.Email}}">{{.Email}}</a></div>
      </div>
      {{- if .Company}}
      <div class="field">
        <div class="label">Company</div>
        <div class="value">{{.Company}}</div>
      </div>
      {{- end}}
      {{- if .Notes}}
      <div class="field">
        <div class="label">Notes</div>
        <div class="value">{{.Notes}}</div>
      </div>
      {{- end}}
      <div class="footer">
        The calendar invite has been sent to both parties automatically.
      </div>
    </div>
  </div>
</body>
</html>
`))

var contactHTML = htmltemplate.Must(htmltemplate.New("contact").Parse(`<!DOCTYPE html>
<html>
<head>
  <style>` + emailStyle + `</style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1 style="margin: 0; font-size: 20px;">New Contact Form Submission</h1>
      <p style="margin: 8px 0 0 0; opacity: 0.9;">From {{.SiteName}} Website</p>
    </div>
    <div class="content">
      <div class="field">
        <div class="label">Name</div>
        <div class="value">{{.Name}}</div>
      </div>
      <div class="field">
        <div class="label">Email</div>
        <div class="value"><a href="mailto:{{.Email}}">{{.Email}}</a></div>
      </div>
      <div class="field">
        <div class="label">Company</div>
        <div class="value">{{or .Company "Not provided"}}</div>
      </div>
      <div class="field">
        <div class="label">Message</div>
        <div class="message-box">{{range $i, $line := .Lines}}{{if $i}}<br>{{end}}{{$line}}{{end}}</div>
      </div>
      <div class="footer">
        This email was sent from the contact form at {{.SiteDomain}}
      </div>
    </div>
  </div>
</body>
</html>
`))

var contactText = texttemplate.Must(texttemplate.New("contact").Parse(`New contact form submission from {{.SiteName}} website:

Name: {{.Name}}
Email: {{.Email}}
Company: {{or .Company "Not provided"}}

Message:
{{.Message}}

---
This email was sent from the contact form at {{.SiteDomain}}`))
