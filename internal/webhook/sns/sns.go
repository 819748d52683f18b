// Package sns verifies Amazon SNS HTTP deliveries: message signatures,
// signing certificate origin and topic ARN.
package sns

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // SignatureVersion 1 is SHA1withRSA
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Message types.
const (
	TypeNotification             = "Notification"
	TypeSubscriptionConfirmation = "SubscriptionConfirmation"
	TypeUnsubscribeConfirmation  = "UnsubscribeConfirmation"
)

var (
	ErrInvalidSignature = errors.New("sns: invalid signature")
	ErrTopicNotAllowed  = errors.New("sns: topic not allowed")
	ErrUntrustedCert    = errors.New("sns: untrusted signing certificate url")
)

var defaultCertHost = regexp.MustCompile(`^sns\.[a-z0-9-]+\.amazonaws\.com(\.cn)?$`)

// Envelope is the JSON document SNS posts.
type Envelope struct {
	Type             string `json:"Type"`
	MessageID        string `json:"MessageId"`
	Token            string `json:"Token,omitempty"`
	TopicArn         string `json:"TopicArn"`
	Subject          string `json:"Subject,omitempty"`
	Message          string `json:"Message"`
	Timestamp        string `json:"Timestamp"`
	SignatureVersion string `json:"SignatureVersion"`
	Signature        string `json:"Signature"`
	SigningCertURL   string `json:"SigningCertURL"`
	SubscribeURL     string `json:"SubscribeURL,omitempty"`
	UnsubscribeURL   string `json:"UnsubscribeURL,omitempty"`
}

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Verifier checks envelopes. Signing certificates are cached by URL.
type Verifier struct {
	allowedTopic string
	certHost     *regexp.Regexp
	client       HTTPDoer

	mu    sync.RWMutex
	certs map[string]*x509.Certificate
}

type Option func(*Verifier)

func WithHTTPClient(c HTTPDoer) Option {
	return func(v *Verifier) {
		if c != nil {
			v.client = c
		}
	}
}

// WithCertHostPattern overrides which hosts may serve signing certificates.
func WithCertHostPattern(re *regexp.Regexp) Option {
	return func(v *Verifier) {
		if re != nil {
			v.certHost = re
		}
	}
}

// NewVerifier accepts messages from topics matching allowedTopic, where '*'
// matches any run of characters, e.g. "arn:aws:sns:us-east-2:783421985614:*".
func NewVerifier(allowedTopic string, opts ...Option) *Verifier {
	v := &Verifier{
		allowedTopic: allowedTopic,
		certHost:     defaultCertHost,
		client:       &http.Client{Timeout: 10 * time.Second},
		certs:        make(map[string]*x509.Certificate),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// TopicAllowed reports whether arn matches the configured pattern.
func (v *Verifier) TopicAllowed(arn string) bool {
	if v.allowedTopic == "" {
		return false
	}
	ok, err := path.Match(v.allowedTopic, arn)
	return err == nil && ok
}

// Verify checks the topic, the certificate origin and the signature.
func (v *Verifier) Verify(ctx context.Context, env *Envelope) error {
	if !v.TopicAllowed(env.TopicArn) {
		return fmt.Errorf("%w: %s", ErrTopicNotAllowed, env.TopicArn)
	}

	var newHash func() hash.Hash
	var algo crypto.Hash
	switch env.SignatureVersion {
	case "1":
		newHash, algo = sha1.New, crypto.SHA1
	case "2":
		newHash, algo = sha256.New, crypto.SHA256
	default:
		return fmt.Errorf("%w: unsupported signature version %q", ErrInvalidSignature, env.SignatureVersion)
	}

	signed, err := StringToSign(env)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil {
		return fmt.Errorf("%w: signature is not base64", ErrInvalidSignature)
	}
	cert, err := v.certificate(ctx, env.SigningCertURL)
	if err != nil {
		return err
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: certificate key is not RSA", ErrInvalidSignature)
	}

	h := newHash()
	h.Write([]byte(signed))
	if err := rsa.VerifyPKCS1v15(pub, algo, h.Sum(nil), sig); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// StringToSign builds the canonical text SNS signs for env's type.
func StringToSign(env *Envelope) (string, error) {
	type field struct{ key, value string }
	var fields []field
	switch env.Type {
	case TypeNotification:
		fields = []field{{"Message", env.Message}, {"MessageId", env.MessageID}}
		if env.Subject != "" {
			fields = append(fields, field{"Subject", env.Subject})
		}
		fields = append(fields,
			field{"Timestamp", env.Timestamp},
			field{"TopicArn", env.TopicArn},
			field{"Type", env.Type},
		)
	case TypeSubscriptionConfirmation, TypeUnsubscribeConfirmation:
		fields = []field{
			{"Message", env.Message},
			{"MessageId", env.MessageID},
			{"SubscribeURL", env.SubscribeURL},
			{"Timestamp", env.Timestamp},
			{"Token", env.Token},
			{"TopicArn", env.TopicArn},
			{"Type", env.Type},
		}
	default:
		return "", fmt.Errorf("%w: unknown message type %q", ErrInvalidSignature, env.Type)
	}

	var b strings.Builder
	for _, f := range fields {
		b.WriteString(f.key)
		b.WriteByte('\n')
		b.WriteString(f.value)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// ConfirmSubscription visits the SubscribeURL of a verified confirmation.
func (v *Verifier) ConfirmSubscription(ctx context.Context, env *Envelope) error {
	if err := v.trustedURL(env.SubscribeURL); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.SubscribeURL, nil)
	if err != nil {
		return fmt.Errorf("build subscribe request: %w", err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("confirm subscription: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("confirm subscription: status %d", resp.StatusCode)
	}
	return nil
}

func (v *Verifier) trustedURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || !v.certHost.MatchString(u.Hostname()) {
		return fmt.Errorf("%w: %q", ErrUntrustedCert, raw)
	}
	return nil
}

func (v *Verifier) certificate(ctx context.Context, certURL string) (*x509.Certificate, error) {
	if err := v.trustedURL(certURL); err != nil {
		return nil, err
	}

	v.mu.RLock()
	cert, ok := v.certs[certURL]
	v.mu.RUnlock()
	if ok {
		return cert, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, certURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build certificate request: %w", err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch signing certificate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch signing certificate: status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read signing certificate: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%w: certificate is not PEM", ErrInvalidSignature)
	}
	cert, err = x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing certificate: %w", err)
	}

	v.mu.Lock()
	v.certs[certURL] = cert
	v.mu.Unlock()
	return cert, nil
}
