package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensourceways/community-robot-lib/logrusutil"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/opensourceways/robot-codearts-gate/publish"
	"github.com/opensourceways/robot-codearts-gate/retry"
	"github.com/opensourceways/robot-codearts-gate/storage"
)

const component = "package-publisher"

type options struct {
	task publish.Task
	obs  storage.Config

	token   string
	ak      string
	sk      string
	obsutil string
	apiURL  string
}

func (o *options) Validate() error {
	if o.token == "" {
		return fmt.Errorf("missing token")
	}

	if o.ak == "" || o.sk == "" {
		return fmt.Errorf("missing ak or sk")
	}

	return o.task.Validate()
}

func gatherOptions(fs *pflag.FlagSet, args ...string) options {
	var o options

	fs.StringVar(&o.token, "token", "", "gitee access token")
	fs.StringVar(&o.task.Owner, "owner", "", "owner of the repository")
	fs.StringVar(&o.task.Repo, "repo", "", "name of the repository")
	fs.StringVar(&o.ak, "ak", "", "access key of the bucket")
	fs.StringVar(&o.sk, "sk", "", "secret key of the bucket")

	fs.StringVar(&o.task.Release.TagName, "tag-name", "", "tag of the release, e.g. v0.0.1")
	fs.StringVar(&o.task.Release.Name, "name", "", "name of the release, e.g. Release For v0.0.1")
	fs.StringVar(&o.task.Release.Body, "body", "", "description of the release")
	fs.StringVar(&o.task.Release.TargetCommitish, "commit-id", "", "branch or commit the release is bound to")
	fs.BoolVar(&o.task.Release.Prerelease, "prerelease", false, "mark the release as a preview")

	fs.StringVar(&o.task.FileName, "file-name", "", "name of the attached file")
	fs.StringVar(&o.task.ObjectKey, "obs-path", "", "path of the artifact in the bucket")
	fs.StringVar(&o.task.LocalDir, "local-dir", "/tmp/data", "directory the artifact is downloaded to")

	fs.StringVar(&o.obs.Endpoint, "obs-endpoint", "", "endpoint of OBS")
	fs.StringVar(&o.obs.Bucket, "obs-bucket", "opensourceways-ci", "bucket keeping the artifact")
	fs.StringVar(&o.obsutil, "obsutil", "", "download with this obsutil binary instead of the OBS SDK")
	fs.StringVar(&o.apiURL, "api-url", publish.DefaultBaseURL, "gitee api prefix")

	_ = fs.Parse(args)

	return o
}

func main() {
	logrusutil.ComponentInit(component)

	o := gatherOptions(pflag.NewFlagSet(os.Args[0], pflag.ExitOnError), os.Args[1:]...)
	if err := o.Validate(); err != nil {
		logrus.WithError(err).Fatal("Invalid options")
	}

	o.obs.SetDefault()

	log := logrus.WithFields(logrus.Fields{
		"repo": o.task.Owner + "/" + o.task.Repo,
		"tag":  o.task.Release.TagName,
	})

	var d storage.Downloader
	if o.obsutil != "" {
		d = storage.NewObsutil(o.obsutil, o.obs, o.ak, o.sk, log)
	} else {
		s, err := storage.NewOBS(o.obs, o.ak, o.sk)
		if err != nil {
			log.WithError(err).Fatal("Error creating obs client.")
		}
		defer s.Close()

		d = s
	}

	// retries are left to the publisher
	hc := &http.Client{Timeout: 10 * time.Minute}

	p := publish.NewPublisher(d, publish.NewClient(o.apiURL, o.token, hc), retry.Default())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(o.task.LocalDir, 0o755); err != nil {
		log.WithError(err).Fatal("Error creating local dir.")
	}

	id, err := p.Publish(ctx, o.task, log)
	if err != nil {
		log.WithError(err).Fatal("Publish failed.")
	}

	log.Infof("published release %d", id)
}
