package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"comment-responder/internal/models"
	"comment-responder/shared/config"
)

var digestTemplate = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>Comment Responder Digest</h2>
  <p>{{.Date.Format "Jan 2, 2006 15:04"}} &middot; run {{.RunID}}</p>
  <p>Scanned {{.VideosScanned}} video(s), posted {{.Processed}} repl{{if eq .Processed 1}}y{{else}}ies{{end}}, skipped {{.Skipped}}.</p>
  {{- if .Replies}}
  <table cellpadding="6" style="border-collapse: collapse;">
    <tr><th align="left">Video</th><th align="left">Comment</th><th align="left">Reply</th></tr>
    {{- range .Replies}}
    <tr style="border-top: 1px solid #ddd;">
      <td><a href="https://www.youtube.com/watch?v={{.VideoID}}&lc={{.CommentID}}">{{.VideoID}}</a></td>
      <td>{{.Comment}}</td>
      <td>{{.Reply}}</td>
    </tr>
    {{- end}}
  </table>
  {{- end}}
  {{- if .Errors}}
  <h3>Errors</h3>
  <ul>
    {{- range .Errors}}
    <li>{{.VideoID}}: {{.Err}}</li>
    {{- end}}
  </ul>
  {{- end}}
</body>
</html>
`))

type Sender struct {
	config *config.EmailConfig
}

func NewSender(cfg *config.EmailConfig) *Sender {
	return &Sender{
		config: cfg,
	}
}

// SendRunReport mails a digest of the run and reports whether a message was
// sent. Runs with nothing posted and no errors are not reported.
func (s *Sender) SendRunReport(report *models.RunReport) (bool, error) {
	if report == nil {
		return false, fmt.Errorf("report cannot be nil")
	}

	if report.Processed() == 0 && len(report.Errors) == 0 {
		return false, nil
	}

	subject := fmt.Sprintf("Comment Responder - %d Replies Posted (%s)",
		report.Processed(), report.Date.Format("Jan 2, 2006"))

	body, err := generateEmailBody(report)
	if err != nil {
		return false, fmt.Errorf("failed to generate email body: %w", err)
	}

	if err := s.SendHTML(subject, body); err != nil {
		return false, err
	}
	return true, nil
}

// SendHTML sends an email with custom HTML content
func (s *Sender) SendHTML(subject, htmlBody string) error {
	return s.sendViaSMTP(subject, htmlBody)
}

func (s *Sender) sendViaSMTP(subject, body string) error {
	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.SMTPServer)

	to := []string{s.config.ToEmail}
	msg := []byte(fmt.Sprintf(`To: %s
From: %s
Subject: %s
MIME-Version: 1.0
Content-Type: text/html; charset=UTF-8

%s`, s.config.ToEmail, s.config.FromEmail, subject, body))

	addr := fmt.Sprintf("%s:%d", s.config.SMTPServer, s.config.SMTPPort)
	return smtp.SendMail(addr, auth, s.config.FromEmail, to, msg)
}

func generateEmailBody(report *models.RunReport) (string, error) {
	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}
