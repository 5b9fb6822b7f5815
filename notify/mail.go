// Package notify mails gate results to the people watching a repository.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/sets"
)

const implicitTLSPort = 465

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

func (c *SMTPConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("missing smtp host")
	}
	if c.Port <= 0 {
		return fmt.Errorf("invalid smtp port:%d", c.Port)
	}
	if c.Sender == "" {
		return fmt.Errorf("missing smtp sender")
	}
	return nil
}

type Mail struct {
	Subject string
	HTML    string
	To      []string

	// AttachDir is a directory whose files are all attached.
	AttachDir string
}

type sendFunc func(e *email.Email, addr string, a smtp.Auth, implicitTLS bool, t *tls.Config) error

func send(e *email.Email, addr string, a smtp.Auth, implicitTLS bool, t *tls.Config) error {
	if implicitTLS {
		return e.SendWithTLS(addr, a, t)
	}
	return e.SendWithStartTLS(addr, a, t)
}

type Mailer struct {
	cfg SMTPConfig
	// always receive every mail, in addition to the per mail receivers
	distribution []string
	log          *logrus.Entry

	send sendFunc
}

func NewMailer(cfg SMTPConfig, distribution []string, log *logrus.Entry) *Mailer {
	return &Mailer{cfg: cfg, distribution: distribution, log: log, send: send}
}

// Receivers merges to with the distribution list, dropping duplicates.
func (m *Mailer) Receivers(to []string) []string {
	s := sets.NewString(to...)
	s.Insert(m.distribution...)
	s.Delete("")

	return s.List()
}

func (m *Mailer) build(mail *Mail) (*email.Email, error) {
	e := email.NewEmail()
	e.From = m.cfg.Sender
	e.To = m.Receivers(mail.To)
	e.Subject = mail.Subject
	e.HTML = []byte(mail.HTML)

	if mail.AttachDir == "" {
		return e, nil
	}

	entries, err := os.ReadDir(mail.AttachDir)
	if err != nil {
		if os.IsNotExist(err) {
			return e, nil
		}
		return nil, err
	}

	for _, item := range entries {
		if item.IsDir() {
			continue
		}

		m.log.Infof("log filename: %s", item.Name())

		if _, err := e.AttachFile(filepath.Join(mail.AttachDir, item.Name())); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Send delivers the mail. Port 465 uses implicit TLS, any other port
// upgrades the connection with STARTTLS.
func (m *Mailer) Send(ctx context.Context, mail Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e, err := m.build(&mail)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)

	err = m.send(e, addr, auth, m.cfg.Port == implicitTLSPort, &tls.Config{ServerName: m.cfg.Host})
	if err != nil {
		return fmt.Errorf("send email failure: %w", err)
	}

	return nil
}

// GateSubject is the subject of the gate result mail of repo.
func GateSubject(repo string) string {
	return fmt.Sprintf("%s门禁检查结果通知", repo)
}

// GateBody wraps the report table of a gate check for mailing.
func GateBody(owner, repo, table, prLink string, at time.Time) string {
	return fmt.Sprintf(
		"代码仓%s/%s在%s执行的门禁检查结果如下:<br/><br/>%s<br/>PR链接: %s",
		owner, repo, at.Format("2006-01-02 15:04:05"), table, prLink,
	)
}
