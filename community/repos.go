package community

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
)

// RepoPipelines is the per repository section of pipeline-config.yml,
// keyed by the repository name.
type RepoPipelines map[string]RepoPipeline

type RepoPipeline struct {
	Mail string `yaml:"mail,omitempty"`

	receivers []string `yaml:"-"`
}

func (r RepoPipelines) Validate() error {
	if r == nil {
		return fmt.Errorf("empty pipeline config")
	}

	for name, item := range r {
		if name == "" {
			return fmt.Errorf("missing repo name")
		}

		item.convert()
		r[name] = item
	}

	return nil
}

// GetReceivers returns the mail receivers configured for repo, or nil
// when the repository has no entry.
func (r RepoPipelines) GetReceivers(repo string) []string {
	if r == nil {
		return nil
	}

	v, ok := r[repo]
	if !ok {
		return nil
	}
	if v.receivers == nil {
		v.convert()
	}

	return v.receivers
}

func (r *RepoPipeline) convert() {
	s := sets.NewString()
	for _, item := range strings.Split(strings.ReplaceAll(r.Mail, " ", ""), ",") {
		if item != "" {
			s.Insert(item)
		}
	}

	r.receivers = s.List()
}
