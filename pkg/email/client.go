package email

import (
	"gopkg.in/mail.v2"
)

// Client sends notifications over SMTP.
type Client struct {
	smtpHost string
	smtpPort int
	username string
	password string
	from     string
}

// NewClient creates a new SMTP client.
func NewClient(smtpHost string, smtpPort int, username, password, from string) *Client {
	return &Client{
		smtpHost: smtpHost,
		smtpPort: smtpPort,
		username: username,
		password: password,
		from:     from,
	}
}

// Send delivers a plain-text message to the given address.
func (c *Client) Send(to, subject, body string) error {
	message := mail.NewMessage()

	message.SetHeader("From", c.from)
	message.SetHeader("To", to)
	message.SetHeader("Subject", subject)

	message.SetBody("text/plain", body)

	dialer := mail.NewDialer(c.smtpHost, c.smtpPort, c.username, c.password)

	return dialer.DialAndSend(message)
}

// Ping verifies the SMTP credentials by opening and closing a connection
// without sending anything.
func (c *Client) Ping() error {
	dialer := mail.NewDialer(c.smtpHost, c.smtpPort, c.username, c.password)

	conn, err := dialer.Dial()
	if err != nil {
		return err
	}
	return conn.Close()
}
