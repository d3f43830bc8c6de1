package notification

import (
	"fmt"
	"net/smtp"

	"github.com/raykavin/rsdash/pkg/core"
	log "github.com/sirupsen/logrus"
)

// sendMailFunc matches smtp.SendMail
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mail handles email notifications for the application
type Mail struct {
	auth              smtp.Auth
	smtpServerPort    int
	smtpServerAddress string
	to                string
	from              string
	notifySuccess     bool
	send              sendMailFunc
}

// MailParams contains all parameters needed to initialize a Mail instance
type MailParams struct {
	SMTPServerPort    int
	SMTPServerAddress string
	To                string
	From              string
	Password          string
	// NotifySuccess also mails applied refreshes, not only failures
	NotifySuccess bool
}

// NewMail creates a new Mail instance with the provided parameters
func NewMail(params MailParams) Mail {
	return Mail{
		from:              params.From,
		to:                params.To,
		smtpServerPort:    params.SMTPServerPort,
		smtpServerAddress: params.SMTPServerAddress,
		notifySuccess:     params.NotifySuccess,
		send:              smtp.SendMail,
		auth: smtp.PlainAuth(
			"",
			params.From,
			params.Password,
			params.SMTPServerAddress,
		),
	}
}

// Notify sends an email notification with the given text
func (m Mail) Notify(text string) {
	serverAddress := fmt.Sprintf("%s:%d", m.smtpServerAddress, m.smtpServerPort)

	err := m.send(
		serverAddress,
		m.auth,
		m.from,
		[]string{m.to},
		m.message(text),
	)

	if err != nil {
		log.WithError(err).Error("notification/mail: failed to send email")
	}
}

func (m Mail) message(text string) []byte {
	return []byte(fmt.Sprintf(
		"To: \"User\" <%s>\r\nFrom: \"rsdash\" <%s>\r\n%s",
		m.to,
		m.from,
		text,
	))
}

// OnRefresh mails an applied refresh when enabled
func (m Mail) OnRefresh(year string) {
	if !m.notifySuccess {
		return
	}
	m.Notify(fmt.Sprintf("Subject: ✅ DASHBOARD UPDATED - %s\r\n\r\nCharts and maps now show %s.", year, year))
}

// OnError sends an error notification
func (m Mail) OnError(err error) {
	m.Notify(fmt.Sprintf("Subject: 🛑 ERROR\r\n\r\n%s", errorMessage(err)))
}

var _ core.Notifier = Mail{}
