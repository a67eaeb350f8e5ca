package mail

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/signalist/notifier/news"
)

const (
	// WelcomeSubject is the subject line of the sign-up email.
	WelcomeSubject = "Welcome to Signalist - your stock market toolkit is ready!"

	// DigestSubject is the subject line of the daily news email.
	DigestSubject = "Your Daily Stock Market News Summary"
)

var welcomeTmpl = template.Must(template.New("welcome").Parse(`<!DOCTYPE html>
<html>
  <body style="margin:0;padding:0;background-color:#141414;font-family:Arial,sans-serif;color:#e5e5e5;">
    <div style="max-width:600px;margin:0 auto;padding:32px 24px;">
      <h1 style="color:#fdd458;">Signalist</h1>
      <h2>Welcome aboard, {{.Name}}!</h2>
      <div>{{.Intro}}</div>
      <p>Here is what you can do right now:</p>
      <ul>
        <li>Build your watchlist and follow the stocks you care about</li>
        <li>Set alerts so you never miss a move</li>
        <li>Get a personalized market digest every morning</li>
      </ul>
      <p style="color:#9ca3af;font-size:12px;">You are receiving this because you signed up for Signalist.</p>
    </div>
  </body>
</html>`))

var digestTmpl = template.Must(template.New("digest").Parse(`
    <h2>Your Daily Market News Summary</h2>
    <div>{{.Summary}}</div>
    <h3>Today's Headlines:</h3>
    <ul>
      {{range .Articles}}
        <li>
          <a href="{{.URL}}">{{.Headline}}</a>
          <p>{{.Summary}}</p>
        </li>
      {{end}}
    </ul>`))

// RenderWelcome produces the sign-up email for a new account. The intro is
// model-generated HTML and is rendered verbatim.
func RenderWelcome(to, name, intro string) (Message, error) {
	var sb strings.Builder
	data := struct {
		Name  string
		Intro template.HTML
	}{Name: name, Intro: template.HTML(intro)}
	if err := welcomeTmpl.Execute(&sb, data); err != nil {
		return Message{}, fmt.Errorf("render welcome email: %w", err)
	}
	return Message{
		To:       to,
		Subject:  WelcomeSubject,
		HTMLBody: sb.String(),
		TextBody: "Thanks for joining Signalist",
	}, nil
}

// RenderDigest produces the daily news email: the model's summary followed
// by the linked headlines it was built from. The summary is model-generated
// HTML and is rendered verbatim.
func RenderDigest(to, summary string, articles news.Digest) (Message, error) {
	var sb strings.Builder
	data := struct {
		Summary  template.HTML
		Articles news.Digest
	}{Summary: template.HTML(summary), Articles: articles}
	if err := digestTmpl.Execute(&sb, data); err != nil {
		return Message{}, fmt.Errorf("render digest email: %w", err)
	}
	return Message{
		To:       to,
		Subject:  DigestSubject,
		HTMLBody: sb.String(),
	}, nil
}
