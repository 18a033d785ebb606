package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/config"
	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/store"
)

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// Email sends course completion emails through SendGrid.
type Email struct {
	key  string
	from *sgmail.Email
	cc   string
	send func(rest.Request) (*rest.Response, error)
}

var _ Subscriber = (*Email)(nil)

// NewEmail creates the SendGrid notifier.
func NewEmail(cfg config.SendGridConfig) *Email {
	return &Email{
		key:  cfg.APIKey,
		from: sgmail.NewEmail(cfg.FromName, cfg.From),
		cc:   cfg.CC,
		send: sendgrid.API,
	}
}

func (n *Email) Name() string { return "sendgrid" }

// Handle emails the learner (when the learner ID is an address) and the
// configured CC about a course completion.
func (n *Email) Handle(_ context.Context, ev store.Event) error {
	c, err := completionOf(ev)
	if err != nil {
		return err
	}
	m, ok := n.prepare(c)
	if !ok {
		return nil
	}

	req := sendgrid.GetRequest(n.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	res, err := n.send(req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

// prepare builds the message. It reports false when there is nobody to
// send to.
func (n *Email) prepare(c completion) (*sgmail.SGMailV3, bool) {
	p := sgmail.NewPersonalization()
	p.Subject = fmt.Sprintf("Course completed: %s", c.CourseTitle)

	to, ok := learnerAddress(c.LearnerID)
	switch {
	case ok:
		p.AddTos(sgmail.NewEmail(to.Name, to.Address))
		if n.cc != "" && n.cc != to.Address {
			p.AddCCs(sgmail.NewEmail("", n.cc))
		}
	case n.cc != "":
		p.AddTos(sgmail.NewEmail("", n.cc))
	default:
		return nil, false
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(n.from)
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", c.text()),
		sgmail.NewContent("text/html", fmt.Sprintf(
			"<p>Congratulations! <strong>%s</strong> has completed <em>%s</em>.</p><p>Certificate ID: <code>%s</code></p>",
			html.EscapeString(c.LearnerID), html.EscapeString(c.CourseTitle), html.EscapeString(c.CertificateID))),
	)
	return m, true
}
