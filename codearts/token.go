package codearts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/huaweicloud/golangsdk"
	"github.com/huaweicloud/golangsdk/openstack"
	"github.com/huaweicloud/golangsdk/openstack/identity/v3/tokens"
)

const refreshMargin = 5 * time.Minute

// TokenSource hands out the token sent as x-auth-token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Credential struct {
	// Account is the domain (main account) name.
	Account string
	// User is the IAM user under the account.
	User     string
	Password string
	// Region scopes the token, e.g. cn-north-4.
	Region string
}

type fetchTokenFunc func() (string, time.Time, error)

// cachedToken reuses a token until it is about to expire.
type cachedToken struct {
	fetch fetchTokenFunc
	now   func() time.Time

	lock      sync.Mutex
	token     string
	expiresAt time.Time
}

func (c *cachedToken) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if c.token != "" && c.now().Add(refreshMargin).Before(c.expiresAt) {
		return c.token, nil
	}

	t, e, err := c.fetch()
	if err != nil {
		return "", err
	}

	c.token = t
	c.expiresAt = e

	return t, nil
}

// NewIAMTokenSource obtains tokens from the IAM endpoint with the password
// of an IAM user, e.g. https://iam.cn-north-4.myhuaweicloud.com/v3/.
func NewIAMTokenSource(endpoint string, cred Credential) (TokenSource, error) {
	provider, err := openstack.NewClient(endpoint)
	if err != nil {
		return nil, err
	}

	sc := &golangsdk.ServiceClient{
		ProviderClient: provider,
		Endpoint:       golangsdk.NormalizeURL(endpoint),
	}

	opts := tokens.AuthOptions{
		IdentityEndpoint: endpoint,
		Username:         cred.User,
		Password:         cred.Password,
		DomainName:       cred.Account,
		Scope: tokens.Scope{
			ProjectName: cred.Region,
			DomainName:  cred.Account,
		},
	}

	fetch := func() (string, time.Time, error) {
		v, err := tokens.Create(sc, &opts).ExtractToken()
		if err != nil {
			return "", time.Time{}, fmt.Errorf("create iam token, err:%w", err)
		}

		return v.ID, v.ExpiresAt, nil
	}

	return &cachedToken{fetch: fetch, now: time.Now}, nil
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (s StaticToken) Token(ctx context.Context) (string, error) {
	return string(s), nil
}
