package registry

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"

	"svckit/config"
)

// ConfigSource fetches named configuration documents. found is false when the
// key does not exist, which is not an error.
type ConfigSource interface {
	FetchConfig(ctx context.Context, key string) (content string, found bool, err error)
}

const (
	defaultNacosPort   = 8848
	defaultContextPath = "/nacos"
)

// configReader is the part of the SDK config client used here
type configReader interface {
	GetConfig(param vo.ConfigParam) (string, error)
}

// NacosClient reads configuration from a Nacos config service through the
// official SDK, which handles namespace routing, login and token refresh.
type NacosClient struct {
	group  string
	reader configReader
	logger *log.Logger
}

// NewNacosClient creates a client for cfg.Address ("host:port", optionally
// with a scheme and context path). Credentials are optional.
func NewNacosClient(cfg config.RegistryConfig, logger *log.Logger) (*NacosClient, error) {
	cfg.SetDefaults()
	if !cfg.Enabled() {
		return nil, fmt.Errorf("registry address not configured")
	}
	server, err := serverConfig(cfg.Address)
	if err != nil {
		return nil, err
	}
	reader, err := clients.NewConfigClient(vo.NacosClientParam{
		ClientConfig:  clientConfig(cfg),
		ServerConfigs: []constant.ServerConfig{server},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create nacos config client for %s: %w", cfg.Address, err)
	}
	if logger != nil {
		logger.Printf("Nacos config client created, server: %s:%d, namespace: %q", server.IpAddr, server.Port, cfg.Namespace)
	}
	return newNacosClient(cfg.Group, reader, logger), nil
}

func newNacosClient(group string, reader configReader, logger *log.Logger) *NacosClient {
	return &NacosClient{group: group, reader: reader, logger: logger}
}

// serverConfig parses a registry address into the SDK's server description
func serverConfig(address string) (constant.ServerConfig, error) {
	raw := strings.TrimSpace(address)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return constant.ServerConfig{}, fmt.Errorf("invalid registry address %q", address)
	}
	port := uint64(defaultNacosPort)
	if p := u.Port(); p != "" {
		if port, err = strconv.ParseUint(p, 10, 16); err != nil {
			return constant.ServerConfig{}, fmt.Errorf("invalid registry port in %q: %w", address, err)
		}
	}
	contextPath := strings.TrimRight(u.Path, "/")
	if contextPath == "" {
		contextPath = defaultContextPath
	}
	return *constant.NewServerConfig(u.Hostname(), port,
		constant.WithScheme(u.Scheme),
		constant.WithContextPath(contextPath),
	), nil
}

// clientConfig keeps the SDK's own log and snapshot files under the temp dir
func clientConfig(cfg config.RegistryConfig) *constant.ClientConfig {
	base := filepath.Join(os.TempDir(), "svckit-nacos")
	return constant.NewClientConfig(
		constant.WithNamespaceId(cfg.Namespace),
		constant.WithUsername(cfg.Username),
		constant.WithPassword(cfg.Password),
		constant.WithTimeoutMs(uint64(cfg.Timeout.Milliseconds())),
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir(filepath.Join(base, "log")),
		constant.WithCacheDir(filepath.Join(base, "cache")),
		constant.WithLogLevel("warn"),
	)
}

type fetchResult struct {
	content string
	err     error
}

// FetchConfig implements ConfigSource. The SDK call takes no context, so it
// runs on its own goroutine and ctx only bounds the wait.
func (c *NacosClient) FetchConfig(ctx context.Context, key string) (string, bool, error) {
	done := make(chan fetchResult, 1)
	go func() {
		content, err := c.reader.GetConfig(vo.ConfigParam{DataId: key, Group: c.group})
		done <- fetchResult{content: content, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", false, fmt.Errorf("config request for %s abandoned: %w", key, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return "", false, fmt.Errorf("config request for %s failed: %w", key, res.err)
		}
		// The SDK reports a missing data id as empty content
		if res.content == "" {
			return "", false, nil
		}
		return res.content, true, nil
	}
}

// Close shuts down the SDK client's background connections
func (c *NacosClient) Close() {
	if closer, ok := c.reader.(interface{ CloseClient() }); ok {
		closer.CloseClient()
	}
}

var _ ConfigSource = (*NacosClient)(nil)
