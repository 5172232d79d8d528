package identity

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	token    string
	tokenErr error
	email    string
	emailErr error
}

func (s *stubProvider) IdentityToken(context.Context) (string, error) {
	return s.token, s.tokenErr
}

func (s *stubProvider) UserInfo(context.Context) (string, error) {
	return s.email, s.emailErr
}

func TestResolveReturnsBothFields(t *testing.T) {
	auth, err := Resolve(context.Background(), &stubProvider{token: "tok", email: "a@b.c"})
	if err != nil {
		t.Fatalf("解析身份失败: %v", err)
	}
	if auth.Token != "tok" || auth.Email != "a@b.c" {
		t.Fatalf("身份内容不符: %+v", auth)
	}
}

func TestResolveRejectsEmptyToken(t *testing.T) {
	_, err := Resolve(context.Background(), &stubProvider{token: "  ", email: "a@b.c"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("期望 ErrUnavailable，得到 %v", err)
	}
}

func TestResolveRejectsEmptyEmail(t *testing.T) {
	_, err := Resolve(context.Background(), &stubProvider{token: "tok"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("期望 ErrUnavailable，得到 %v", err)
	}
}

func TestResolveWrapsProviderFailure(t *testing.T) {
	_, err := Resolve(context.Background(), &stubProvider{tokenErr: errors.New("not connected")})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("期望 ErrUnavailable，得到 %v", err)
	}
}

func TestResolveNilProvider(t *testing.T) {
	if _, err := Resolve(context.Background(), nil); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("期望 ErrUnavailable，得到 %v", err)
	}
}
