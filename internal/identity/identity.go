package identity

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	xerrors "SafeGuard-Console/internal/errors"
)

// CodeUnavailable 表示身份提供方不可用或未返回完整身份。
const CodeUnavailable xerrors.Code = "AUTH_UNAVAILABLE"

func init() {
	xerrors.Register(CodeUnavailable, xerrors.Attributes{
		Message:   "identity provider unavailable",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     false,
	})
}

// ErrUnavailable 表示无法从身份提供方取得令牌或邮箱。
var ErrUnavailable = xerrors.New(CodeUnavailable, "identity provider unavailable")

// Context carries the short-lived identity for a single custody flow. It is
// fetched fresh at the start of every flow and never cached across flows.
type Context struct {
	Token string
	Email string
}

// Provider 抽象身份提供方，要求在连接完成后可以取得令牌与用户信息。
type Provider interface {
	IdentityToken(ctx context.Context) (string, error)
	UserInfo(ctx context.Context) (string, error)
}

// Resolve issues the token and user-info calls concurrently and waits for
// both. A missing provider, a failed call, or an empty token or email all
// yield ErrUnavailable: the flow must not proceed with a partial identity.
func Resolve(ctx context.Context, provider Provider) (Context, error) {
	if provider == nil {
		return Context{}, ErrUnavailable
	}

	var token, email string
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		token, err = provider.IdentityToken(groupCtx)
		return err
	})
	group.Go(func() error {
		var err error
		email, err = provider.UserInfo(groupCtx)
		return err
	})
	if err := group.Wait(); err != nil {
		return Context{}, xerrors.Wrap(CodeUnavailable, err, "获取身份信息失败")
	}

	token = strings.TrimSpace(token)
	email = strings.TrimSpace(email)
	if token == "" || email == "" {
		return Context{}, ErrUnavailable
	}
	return Context{Token: token, Email: email}, nil
}
