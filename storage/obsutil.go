package storage

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Obsutil drives the obsutil command line tool. It is configured with the
// credential once, before the first copy.
type Obsutil struct {
	bin    string
	cfg    Config
	ak, sk string
	run    Runner
	log    *logrus.Entry

	once      sync.Once
	configErr error
}

func NewObsutil(bin string, cfg Config, ak, sk string, log *logrus.Entry) *Obsutil {
	cfg.SetDefault()

	if bin == "" {
		bin = "obsutil"
	}

	return &Obsutil{bin: bin, cfg: cfg, ak: ak, sk: sk, run: execRunner, log: log}
}

func (o *Obsutil) configure(ctx context.Context) error {
	o.once.Do(func() {
		out, err := o.run(ctx, o.bin, "config", "-i="+o.ak, "-k="+o.sk, "-e="+o.cfg.Endpoint)
		if err != nil {
			o.configErr = fmt.Errorf("obsutil config, err:%w, output:%s", err, out)
		}
	})

	return o.configErr
}

func (o *Obsutil) cp(ctx context.Context, from, to string) error {
	if err := o.configure(ctx); err != nil {
		return err
	}

	out, err := o.run(ctx, o.bin, "cp", from, to, "-r", "-f")
	if err != nil {
		return fmt.Errorf("obsutil cp %s %s, err:%w, output:%s", from, to, err, out)
	}

	o.log.Debugf("obsutil cp %s %s: %s", from, to, strings.TrimSpace(string(out)))

	return nil
}

func (o *Obsutil) Upload(ctx context.Context, localPath, key string) error {
	return o.cp(ctx, localPath, o.objectURL(key))
}

func (o *Obsutil) Download(ctx context.Context, key, localPath string) error {
	return o.cp(ctx, o.objectURL(key), localPath)
}

func (o *Obsutil) objectURL(key string) string {
	return fmt.Sprintf("obs://%s/%s", o.cfg.Bucket, key)
}
