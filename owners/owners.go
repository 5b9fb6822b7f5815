// Package owners collects the OWNERS files of every repository in a Gitee
// organization into one collection repository, and tells the community
// CIEs about repositories that were added since the last collection.
package owners

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sdk "github.com/opensourceways/go-gitee/gitee"
	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/opensourceways/robot-codearts-gate/notify"
)

const defaultTargetFile = "OWNERS"

type iRepoLister interface {
	GetRepos(org string) ([]sdk.Project, error)
}

type iGit interface {
	Sync(ctx context.Context, url, dir string) error
	CommitAndPush(ctx context.Context, dir, msg string) (bool, error)
}

type iMailer interface {
	Send(ctx context.Context, mail notify.Mail) error
}

type Config struct {
	Org string
	// CollectionRepo receives the OWNERS files and is never collected itself.
	CollectionRepo string
	TargetFile     string
	WorkDir        string

	// MailTemplate is the html body of the new repository mail, in which
	// {{repos}} is replaced with the repository links.
	MailTemplate string
	MailSubject  string
	MailTo       []string
}

func (c *Config) SetDefault() {
	if c.TargetFile == "" {
		c.TargetFile = defaultTargetFile
	}

	if c.MailTemplate == "" {
		c.MailTemplate = "<p>以下代码仓为新增代码仓, 请关注:</p>{{repos}}"
	}

	if c.MailSubject == "" {
		c.MailSubject = fmt.Sprintf("%s新增代码仓通知", c.Org)
	}
}

func (c *Config) Validate() error {
	if c.Org == "" {
		return fmt.Errorf("missing org")
	}

	if c.CollectionRepo == "" {
		return fmt.Errorf("missing collection repo")
	}

	if c.WorkDir == "" {
		return fmt.Errorf("missing work dir")
	}

	return nil
}

type Collector struct {
	cfg    Config
	cli    iRepoLister
	git    iGit
	mailer iMailer
	pool   *ants.Pool
	wg     sync.WaitGroup
	now    func() time.Time
}

func NewCollector(cfg Config, cli iRepoLister, g iGit, mailer iMailer, pool *ants.Pool) *Collector {
	return &Collector{
		cfg:    cfg,
		cli:    cli,
		git:    g,
		mailer: mailer,
		pool:   pool,
		now:    time.Now,
	}
}

func (c *Collector) reposDir() string {
	return filepath.Join(c.cfg.WorkDir, "repos")
}

func (c *Collector) collectionDir() string {
	return filepath.Join(c.cfg.WorkDir, c.cfg.CollectionRepo)
}

func (c *Collector) repoListFile() string {
	return filepath.Join(c.cfg.WorkDir, c.cfg.Org+".txt")
}

func (c *Collector) cloneURL(repo string) string {
	return fmt.Sprintf("https://gitee.com/%s/%s.git", c.cfg.Org, repo)
}

// Run collects every interval until ctx is cancelled.
func (c *Collector) Run(ctx context.Context, interval time.Duration, log *logrus.Entry) {
	for {
		if isCancelled(ctx) {
			break
		}

		if err := c.CollectOnce(ctx, log); err != nil {
			log.Errorf("collect owners, err:%s", err.Error())
		}

		log.Infof("task done, sleep %s for next task", interval)

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
		case <-t.C:
		}
		t.Stop()
	}

	c.wg.Wait()
}

func (c *Collector) CollectOnce(ctx context.Context, log *logrus.Entry) error {
	repos, err := c.listRepos()
	if err != nil {
		return err
	}

	if err := c.checkNewRepos(ctx, repos, log); err != nil {
		log.Errorf("check new repos, err:%s", err.Error())
	}

	if err := writeLines(c.repoListFile(), repos); err != nil {
		return err
	}

	if err := c.git.Sync(ctx, c.cloneURL(c.cfg.CollectionRepo), c.collectionDir()); err != nil {
		return err
	}

	for _, repo := range repos {
		if repo == c.cfg.CollectionRepo {
			continue
		}

		if isCancelled(ctx) {
			break
		}

		if err := c.submit(ctx, repo, log.WithField("repo", repo)); err != nil {
			log.Errorf("submit task of repo:%s, err:%s", repo, err.Error())
		}
	}

	c.wg.Wait()

	done, err := c.git.CommitAndPush(ctx, c.collectionDir(), "update OWNERS files")
	if err == nil && done {
		log.Infof("pushed OWNERS of %d repos", len(repos))
	}

	return err
}

func (c *Collector) submit(ctx context.Context, repo string, log *logrus.Entry) error {
	c.wg.Add(1)
	err := c.pool.Submit(func() {
		defer c.wg.Done()

		dir := filepath.Join(c.reposDir(), repo)
		if err := c.git.Sync(ctx, c.cloneURL(repo), dir); err != nil {
			log.Errorf("sync, err:%s", err.Error())
			return
		}

		n, err := CopyTargetFiles(c.reposDir(), repo, c.collectionDir(), c.cfg.TargetFile)
		if err != nil {
			log.Errorf("copy %s files, err:%s", c.cfg.TargetFile, err.Error())
			return
		}

		log.Infof("copied %d %s files", n, c.cfg.TargetFile)
	})
	if err != nil {
		c.wg.Done()
	}
	return err
}

func (c *Collector) listRepos() ([]string, error) {
	v, err := c.cli.GetRepos(c.cfg.Org)
	if err != nil {
		return nil, fmt.Errorf("list repos of org:%s, err:%s", c.cfg.Org, err.Error())
	}

	s := sets.NewString()
	for i := range v {
		if name := repoName(&v[i]); name != "" {
			s.Insert(name)
		}
	}

	return s.List(), nil
}

func repoName(p *sdk.Project) string {
	if p.Path != "" {
		return p.Path
	}

	if i := strings.LastIndex(p.FullName, "/"); i >= 0 {
		return p.FullName[i+1:]
	}
	return p.FullName
}

// checkNewRepos compares repos with the list stored by the last
// collection. New ones are logged under log/<date>.log and mailed.
func (c *Collector) checkNewRepos(ctx context.Context, repos []string, log *logrus.Entry) error {
	before, err := readLines(c.repoListFile())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	added := NewRepos(before, repos)
	if len(added) == 0 {
		return nil
	}

	log.Infof("new repos: %s", strings.Join(added, ", "))

	p := filepath.Join(c.cfg.WorkDir, "log", c.now().Format("2006-01-02")+".log")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}

	if err := writeLines(p, added); err != nil {
		return err
	}

	if len(c.cfg.MailTo) == 0 {
		return nil
	}

	return c.mailer.Send(ctx, notify.Mail{
		Subject: c.cfg.MailSubject,
		HTML:    c.mailBody(added),
		To:      c.cfg.MailTo,
	})
}

func (c *Collector) mailBody(repos []string) string {
	b := strings.Builder{}
	for _, repo := range repos {
		b.WriteString(fmt.Sprintf("<p>https://gitee.com/%s/%s</p>", c.cfg.Org, repo))
	}

	return strings.ReplaceAll(c.cfg.MailTemplate, "{{repos}}", b.String())
}

// NewRepos returns the repos of after that are not in before.
func NewRepos(before, after []string) []string {
	return sets.NewString(after...).Difference(sets.NewString(before...)).List()
}

// CopyTargetFiles copies every file named target under reposDir/repo to
// the same relative path under dst. It returns the number of files copied.
func CopyTargetFiles(reposDir, repo, dst, target string) (int, error) {
	n := 0

	err := filepath.Walk(filepath.Join(reposDir, repo), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}

		if info.Name() != target {
			return nil
		}

		rel, err := filepath.Rel(reposDir, path)
		if err != nil {
			return err
		}

		if err := copyFile(path, filepath.Join(dst, rel)); err != nil {
			return err
		}
		n++

		return nil
	})

	return n, err
}

func copyFile(from, to string) error {
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return err
	}

	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(to)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}

	return dst.Close()
}

func readLines(p string) ([]string, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}

	var r []string
	for _, line := range strings.Split(string(b), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			r = append(r, line)
		}
	}
	return r, nil
}

func writeLines(p string, lines []string) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}

	return os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}

func isCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
