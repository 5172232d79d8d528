package identity

import "context"

// Static is a fixed identity, useful for local development and tests.
type Static struct {
	Token string
	Email string
}

// IdentityToken 返回固定令牌。
func (s Static) IdentityToken(context.Context) (string, error) {
	return s.Token, nil
}

// UserInfo 返回固定邮箱。
func (s Static) UserInfo(context.Context) (string, error) {
	return s.Email, nil
}
