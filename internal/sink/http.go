package sink

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"svckit/config"
)

// Request headers understood by the ingest endpoint
const (
	HeaderAccessKey     = "X-Log-AccessKeyId"
	HeaderSecurityToken = "X-Log-SecurityToken"
	HeaderDate          = "X-Log-Date"
	HeaderSignature     = "X-Log-Signature"
	HeaderRegion        = "X-Log-Region"
)

// putLogsRequest is the JSON body of one ingest call
type putLogsRequest struct {
	TopicID string  `json:"topic_id"`
	Source  string  `json:"source,omitempty"`
	Logs    []Entry `json:"logs"`
}

// HTTPTransport POSTs each batch as one JSON document, optionally compressed
// and signed with the access key secret.
type HTTPTransport struct {
	client      *http.Client
	url         string
	sink        config.SinkConfig
	compression string
	encoder     *zstd.Encoder
}

// NewHTTPTransport builds a transport for an http(s) sink endpoint
func NewHTTPTransport(sink config.SinkConfig, cfg config.HTTPSinkConfig) (*HTTPTransport, error) {
	cfg.SetDefaults()
	compression := strings.ToLower(cfg.Compression)

	t := &HTTPTransport{
		client:      &http.Client{Timeout: cfg.Timeout},
		url:         strings.TrimRight(sink.Endpoint, "/") + "/" + strings.TrimLeft(cfg.Path, "/"),
		sink:        sink,
		compression: compression,
	}
	switch compression {
	case "zstd":
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		t.encoder = enc
	case "gzip", "none":
	default:
		return nil, fmt.Errorf("unsupported http compression %q", cfg.Compression)
	}
	return t, nil
}

// PutLogs implements Transport
func (t *HTTPTransport) PutLogs(ctx context.Context, topic string, entries []Entry) error {
	body, err := json.Marshal(putLogsRequest{
		TopicID: topic,
		Source:  t.sink.ServiceName,
		Logs:    entries,
	})
	if err != nil {
		return fmt.Errorf("failed to encode log batch: %w", err)
	}
	// The signature covers the uncompressed document
	date := time.Now().UTC().Format(time.RFC3339)
	signature := Sign(t.sink.AccessKeySecret, date, body)

	payload, err := t.compress(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build ingest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.compression != "none" {
		req.Header.Set("Content-Encoding", t.compression)
	}
	req.Header.Set(HeaderDate, date)
	if t.sink.Region != "" {
		req.Header.Set(HeaderRegion, t.sink.Region)
	}
	if t.sink.AccessKeyID != "" {
		req.Header.Set(HeaderAccessKey, t.sink.AccessKeyID)
		req.Header.Set(HeaderSignature, signature)
	}
	if t.sink.Token != "" {
		req.Header.Set(HeaderSecurityToken, t.sink.Token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("ingest request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ingest endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (t *HTTPTransport) compress(body []byte) ([]byte, error) {
	switch t.compression {
	case "zstd":
		return t.encoder.EncodeAll(body, make([]byte, 0, len(body)/2)), nil
	case "gzip":
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return nil, fmt.Errorf("gzip log batch: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("gzip log batch: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return body, nil
	}
}

// Close implements Transport
func (t *HTTPTransport) Close() error {
	if t.encoder != nil {
		t.encoder.Close()
	}
	t.client.CloseIdleConnections()
	return nil
}

// Sign returns the hex HMAC-SHA256 of date and the body digest under secret.
// Receivers recompute it from the X-Log-Date header and the decoded body.
func Sign(secret, date string, body []byte) string {
	digest := sha256.Sum256(body)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(date))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(hex.EncodeToString(digest[:])))
	return hex.EncodeToString(mac.Sum(nil))
}

var _ Transport = (*HTTPTransport)(nil)
