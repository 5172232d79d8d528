package chain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"SafeGuard-Console/internal/config"
)

// Registry manages a set of chain clients keyed by human readable names.
type Registry struct {
	defaultChain string
	clients      map[string]*Client
}

// NewRegistry loads chain definitions and instantiates concrete clients.
func NewRegistry(ctx context.Context, cfg config.ChainConfig) (*Registry, error) {
	defs, err := LoadDefinitions(cfg.Definitions)
	if err != nil {
		return nil, err
	}

	clients := make(map[string]*Client)
	for name, def := range defs.Chains {
		client, err := NewClient(ctx, ClientConfig{
			Name:   name,
			RPCURL: def.RPCURL,
			Notes:  def.Description,
		})
		if err != nil {
			return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
		}
		clients[name] = client
	}

	defaultChain := cfg.DefaultChain
	if len(clients) == 0 && strings.TrimSpace(cfg.RPCURL) != "" {
		client, err := NewClient(ctx, ClientConfig{Name: "default", RPCURL: cfg.RPCURL})
		if err != nil {
			return nil, err
		}
		clients["default"] = client
		if defaultChain == "" {
			defaultChain = "default"
		}
	}

	if len(clients) == 0 {
		return nil, errors.New("未配置任何链的 RPC 端点")
	}

	if defaultChain == "" {
		names := make([]string, 0, len(clients))
		for name := range clients {
			names = append(names, name)
		}
		sort.Strings(names)
		defaultChain = names[0]
	}
	if _, ok := clients[defaultChain]; !ok {
		return nil, fmt.Errorf("默认链 %s 未在配置中找到", defaultChain)
	}

	return &Registry{defaultChain: defaultChain, clients: clients}, nil
}

// DefaultClient returns the client for the configured default chain.
func (r *Registry) DefaultClient() (*Client, error) {
	if r == nil {
		return nil, errors.New("链注册表未初始化")
	}
	client, ok := r.clients[r.defaultChain]
	if !ok {
		return nil, fmt.Errorf("默认链 %s 不可用", r.defaultChain)
	}
	return client, nil
}

// Client returns the client registered under the given name.
func (r *Registry) Client(name string) (*Client, error) {
	if r == nil {
		return nil, errors.New("链注册表未初始化")
	}
	client, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("链 %s 未在配置中找到", name)
	}
	return client, nil
}

// Close releases every client held by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for _, client := range r.clients {
		client.Close()
	}
}
