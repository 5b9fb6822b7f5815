package community

import (
	"fmt"

	"k8s.io/apimachinery/pkg/util/sets"
)

// CheckNames maps a canonical check name to the raw job names that
// pipelines use for it.
type CheckNames struct {
	Items map[string][]string `json:"check_names,omitempty"`

	canonical map[string]string `json:"-"`
}

func DefaultCheckNames() *CheckNames {
	c := &CheckNames{
		Items: map[string][]string{
			"sca":         {"sca", "codecheck_scan", "CodeSCA", "CodeSCA检查"},
			"anti_poison": {"anti_poison", "codecheck_ftd", "防投毒扫描"},
			"code_check":  {"code_check", "codecheck", "codecheck扫描", "CodeCheck代码检查"},
			"dt_check":    {"dt_check", "DT"},
			"build":       {"build", "Build构建", "pr构建编译", "build构建"},
			"build_arm":   {"build_arm", "Build_ARM"},
			"build_x86":   {"build_x86", "Build_X86"},
		},
	}
	c.convert()

	return c
}

func (c *CheckNames) Validate() error {
	if c == nil {
		return fmt.Errorf("empty check names")
	}

	s := sets.NewString()
	for k, names := range c.Items {
		if k == "" {
			return fmt.Errorf("missing canonical check name")
		}

		for _, n := range names {
			if s.Has(n) {
				return fmt.Errorf("validate check %s, err:duplicate job name:%s", k, n)
			}
			s.Insert(n)
		}
	}

	c.convert()
	return nil
}

func (c *CheckNames) convert() {
	v := make(map[string]string)
	for k, names := range c.Items {
		for _, n := range names {
			v[n] = k
		}
	}

	c.canonical = v
}

// Canonical returns the canonical check name of a raw job name. Names
// that are not in the table are returned unchanged.
func (c *CheckNames) Canonical(jobName string) string {
	if c == nil {
		return jobName
	}

	if c.canonical == nil {
		c.convert()
	}

	if v, ok := c.canonical[jobName]; ok {
		return v
	}

	return jobName
}
