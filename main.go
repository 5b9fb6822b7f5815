package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/opensourceways/community-robot-lib/logrusutil"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/opensourceways/robot-codearts-gate/codearts"
	"github.com/opensourceways/robot-codearts-gate/codehost"
	"github.com/opensourceways/robot-codearts-gate/metrics"
	"github.com/opensourceways/robot-codearts-gate/notify"
	"github.com/opensourceways/robot-codearts-gate/storage"
)

type options struct {
	accessToken string
	owner       string
	repo        string
	prID        int

	projectID     string
	pipelineID    string
	pipelineRunID string

	username    string
	subUsername string
	password    string
	ak          string
	sk          string

	github bool

	smtp notify.SMTPConfig

	removeDetail   bool
	watch          bool
	configFile     string
	logDir         string
	obsutil        string
	pushgatewayURL string
}

func (o *options) Validate() error {
	if o.accessToken == "" {
		return fmt.Errorf("missing access-token")
	}

	if o.owner == "" || o.repo == "" || o.prID <= 0 {
		return fmt.Errorf("owner, repo and pr-id are required")
	}

	ref := o.runRef()
	if ref.IsEmpty() && !o.watch {
		return fmt.Errorf("project-id, pipeline-id and pipeline-run-id are required without --watch")
	}

	if o.username == "" || o.subUsername == "" || o.password == "" {
		return fmt.Errorf("username, sub-username and password are required")
	}

	if o.ak == "" || o.sk == "" {
		return fmt.Errorf("missing ak or sk")
	}

	return o.smtp.Validate()
}

func (o *options) runRef() codearts.RunRef {
	return codearts.RunRef{
		ProjectID:  o.projectID,
		PipelineID: o.pipelineID,
		RunID:      o.pipelineRunID,
	}
}

func gatherOptions(fs *pflag.FlagSet, args ...string) options {
	var o options

	fs.StringVar(&o.accessToken, "access-token", "", "token of the code hosting platform")
	fs.StringVar(&o.owner, "owner", "", "owner of the repository")
	fs.StringVar(&o.repo, "repo", "", "name of the repository")
	fs.IntVar(&o.prID, "pr-id", 0, "number of the pull request")

	fs.StringVar(&o.projectID, "project-id", "", "id of the pipeline project")
	fs.StringVar(&o.pipelineID, "pipeline-id", "", "id of the pipeline")
	fs.StringVar(&o.pipelineRunID, "pipeline-run-id", "", "id of the pipeline run")

	fs.StringVar(&o.username, "username", "", "account name of the cloud")
	fs.StringVar(&o.subUsername, "sub-username", "", "IAM user of the account")
	fs.StringVar(&o.password, "password", "", "password of the IAM user")
	fs.StringVar(&o.ak, "ak", "", "access key of the bucket")
	fs.StringVar(&o.sk, "sk", "", "secret key of the bucket")

	fs.BoolVar(&o.github, "github", false, "the pull request is hosted on GitHub")

	fs.StringVar(&o.smtp.Host, "smtp-host", "", "host of the smtp server")
	fs.IntVar(&o.smtp.Port, "smtp-port", 465, "port of the smtp server, 465 for implicit TLS")
	fs.StringVar(&o.smtp.Username, "smtp-username", "", "user of the smtp server")
	fs.StringVar(&o.smtp.Password, "smtp-password", "", "password of the smtp user")
	fs.StringVar(&o.smtp.Sender, "smtp-sender", "", "sender address of the mail")

	fs.BoolVar(&o.removeDetail, "remove-detail", false, "omit the detail column")
	fs.BoolVar(&o.watch, "watch", false, "poll the pipeline run until it finishes")
	fs.StringVar(&o.configFile, "config-file", "", "path to the config file")
	fs.StringVar(&o.logDir, "log-dir", "", "directory keeping the log pages")
	fs.StringVar(&o.obsutil, "obsutil", "", "upload with this obsutil binary instead of the OBS SDK")
	fs.StringVar(&o.pushgatewayURL, "pushgateway-url", "", "push gate metrics to this pushgateway")

	_ = fs.Parse(args)

	return o
}

func main() {
	logrusutil.ComponentInit(botName)

	o := gatherOptions(pflag.NewFlagSet(os.Args[0], pflag.ExitOnError), os.Args[1:]...)
	if err := o.Validate(); err != nil {
		logrus.WithError(err).Fatal("Invalid options")
	}

	cfg, err := loadConfig(o.configFile)
	if err != nil {
		logrus.WithError(err).Fatal("Error loading config.")
	}

	if o.logDir != "" {
		cfg.LogDir = o.logDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logrus.WithFields(logrus.Fields{
		"repo": o.owner + "/" + o.repo,
		"pr":   o.prID,
	})

	bot, err := newRobotFromOptions(&o, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Error creating robot.")
	}

	if o.watch {
		err = bot.watch(ctx, log)
	} else {
		err = bot.runOnce(ctx, log)
	}

	if err != nil {
		log.WithError(err).Fatal("Gate check failed.")
	}
}

func newRobotFromOptions(o *options, cfg *botConfig, log *logrus.Entry) (*robot, error) {
	ts, err := codearts.NewIAMTokenSource(cfg.IAMEndpoint, codearts.Credential{
		Account:  o.username,
		User:     o.subUsername,
		Password: o.password,
		Region:   cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	hc := codearts.NewHTTPClient()

	p := cfg.retryPolicy()
	p.Log = log

	cli := codehost.New(o.github, o.accessToken, codehost.PR{
		Owner:  o.owner,
		Repo:   o.repo,
		Number: o.prID,
	}, p)

	var uploader storage.Uploader
	if o.obsutil != "" {
		uploader = storage.NewObsutil(o.obsutil, cfg.OBS, o.ak, o.sk, log)
	} else {
		s, err := storage.NewOBS(cfg.OBS, o.ak, o.sk)
		if err != nil {
			return nil, err
		}
		uploader = s
	}

	task := gateTask{
		owner:        o.owner,
		repo:         o.repo,
		pr:           o.prID,
		ref:          o.runRef(),
		removeDetail: o.removeDetail,
	}

	bot := newRobot(
		cfg, task, cli,
		codearts.NewClient(cfg.Endpoints, ts, hc),
		storage.WithRetry(uploader, p),
		notify.NewMailer(o.smtp, cfg.Distribution, log),
		notify.NewRecipientLoader(cfg.RecipientsURL, o.accessToken, hc, log),
	)

	return bot.withMetrics(metrics.NewGate(), o.pushgatewayURL), nil
}
