package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensourceways/community-robot-lib/giteeclient"
	"github.com/opensourceways/community-robot-lib/logrusutil"
	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/opensourceways/robot-codearts-gate/notify"
	"github.com/opensourceways/robot-codearts-gate/owners"
)

const component = "owners-collector"

type options struct {
	owners owners.Config

	user       string
	token      string
	email      string
	mailTo     string
	mailFile   string
	interval   int
	concurrent int

	smtp notify.SMTPConfig
}

func (o *options) Validate() error {
	if o.user == "" || o.token == "" {
		return fmt.Errorf("missing user or token")
	}

	if o.interval <= 0 {
		return fmt.Errorf("invalid interval:%d", o.interval)
	}

	if o.concurrent <= 0 {
		return fmt.Errorf("invalid concurrent size:%d", o.concurrent)
	}

	if o.mailTo != "" {
		if err := o.smtp.Validate(); err != nil {
			return err
		}
	}

	return o.owners.Validate()
}

func gatherOptions(fs *pflag.FlagSet, args ...string) options {
	var o options

	fs.StringVar(&o.owners.Org, "org", "", "gitee organization to collect")
	fs.StringVar(&o.owners.CollectionRepo, "collection-repo", "", "repository receiving the OWNERS files")
	fs.StringVar(&o.owners.TargetFile, "target-file", "OWNERS", "name of the collected files")
	fs.StringVar(&o.owners.WorkDir, "work-dir", ".", "directory keeping the clones and repo list")

	fs.StringVar(&o.user, "user", "", "gitee user cloning and pushing")
	fs.StringVar(&o.token, "token", "", "gitee token of the user")
	fs.StringVar(&o.email, "email", "", "commit email of the user")
	fs.StringVar(&o.mailTo, "mail-to", "", "receivers of the new repository mail, separated by ';'")
	fs.StringVar(&o.mailFile, "mail-template", "", "html template of the new repository mail")
	fs.IntVar(&o.interval, "interval", 24, "hours between two collections")
	fs.IntVar(&o.concurrent, "concurrent-size", 10, "number of repositories synced at the same time")

	fs.StringVar(&o.smtp.Host, "smtp-host", "", "host of the smtp server")
	fs.IntVar(&o.smtp.Port, "smtp-port", 465, "port of the smtp server")
	fs.StringVar(&o.smtp.Username, "smtp-username", "", "user of the smtp server")
	fs.StringVar(&o.smtp.Password, "smtp-password", "", "password of the smtp user")
	fs.StringVar(&o.smtp.Sender, "smtp-sender", "", "sender address of the mail")

	_ = fs.Parse(args)

	return o
}

func main() {
	logrusutil.ComponentInit(component)

	o := gatherOptions(pflag.NewFlagSet(os.Args[0], pflag.ExitOnError), os.Args[1:]...)
	if err := o.Validate(); err != nil {
		logrus.WithError(err).Fatal("Invalid options")
	}

	cfg := o.owners
	for _, v := range strings.Split(o.mailTo, ";") {
		if v = strings.TrimSpace(v); v != "" {
			cfg.MailTo = append(cfg.MailTo, v)
		}
	}

	if o.mailFile != "" {
		b, err := os.ReadFile(o.mailFile)
		if err != nil {
			logrus.WithError(err).Fatal("Error reading mail template.")
		}
		cfg.MailTemplate = string(b)
	}
	cfg.SetDefault()

	pool, err := ants.NewPool(o.concurrent)
	if err != nil {
		logrus.WithError(err).Fatal("Error starting goroutine pool.")
	}
	defer pool.Release()

	log := logrus.WithField("org", cfg.Org)

	cli := giteeclient.NewClient(func() []byte {
		return []byte(o.token)
	})

	c := owners.NewCollector(
		cfg, cli,
		owners.NewGitRepos(o.user, o.token, o.email),
		notify.NewMailer(o.smtp, nil, log),
		pool,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c.Run(ctx, time.Duration(o.interval)*time.Hour, log)
}
