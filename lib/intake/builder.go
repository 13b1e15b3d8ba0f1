// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package intake

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/spool/lib/secret"
	"github.com/bureau-foundation/spool/lib/storage"
	"github.com/bureau-foundation/spool/lib/upload"
	"github.com/bureau-foundation/spool/lib/version"
)

// Request headers beyond the standard ones.
const (
	HeaderAPIKey        = "DD-API-KEY"
	HeaderOrigin        = "DD-EVP-ORIGIN"
	HeaderOriginVersion = "DD-EVP-ORIGIN-VERSION"
	HeaderBatchDigest   = "X-Spool-Batch-Digest"
)

// Config describes where and how one feature's batches are sent.
type Config struct {
	// Site selects the intake. Ignored when Endpoint is set.
	Site Site

	// Endpoint overrides the site with a custom base URL, such as a
	// proxy or a test server.
	Endpoint string

	// Track is the intake path segment: the request goes to
	// <endpoint>/api/v2/<track>.
	Track string

	Format   Format
	Encoding Encoding

	// ClientToken authenticates the client. Borrowed: the caller
	// keeps ownership and must keep it open while the builder is used.
	ClientToken *secret.Buffer

	// Source is the ddsource value and origin header, for example
	// "go" or "browser".
	Source string

	// UserAgent defaults to version.UserAgent("spool").
	UserAgent string
}

// Builder builds intake requests for one feature. It implements
// upload.RequestBuilder and is safe for concurrent use.
type Builder struct {
	url         url.URL
	format      Format
	encoding    Encoding
	clientToken *secret.Buffer
	source      string
	userAgent   string
}

var _ upload.RequestBuilder = (*Builder)(nil)

// NewBuilder validates config and returns a Builder.
func NewBuilder(config Config) (*Builder, error) {
	var errs []error
	endpoint := config.Endpoint
	if endpoint == "" {
		var err error
		if endpoint, err = config.Site.Endpoint(); err != nil {
			errs = append(errs, err)
		}
	}
	if config.Track == "" || strings.Contains(config.Track, "/") {
		errs = append(errs, fmt.Errorf("track %q must be a single path segment", config.Track))
	}
	if err := config.Format.validate(); err != nil {
		errs = append(errs, err)
	}
	if err := config.Encoding.validate(); err != nil {
		errs = append(errs, err)
	}
	if config.ClientToken == nil {
		errs = append(errs, errors.New("client token is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("intake: %w", err)
	}

	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("intake: parsing endpoint: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("intake: endpoint %q must be an http or https URL", endpoint)
	}
	target := base.JoinPath("api", "v2", config.Track)

	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent("spool")
	}
	source := config.Source
	if source == "" {
		source = "go"
	}
	return &Builder{
		url:         *target,
		format:      config.Format,
		encoding:    config.Encoding,
		clientToken: config.ClientToken,
		source:      source,
		userAgent:   userAgent,
	}, nil
}

// URL returns the request URL without query parameters.
func (b *Builder) URL() string {
	return b.url.String()
}

// Request implements upload.RequestBuilder. Each call gets a fresh
// request ID. The digest header covers the uncompressed body, so it
// stays the same across retries of one batch and lets the intake
// drop duplicates.
func (b *Builder) Request(events []storage.Event, uploadContext upload.Context) (*http.Request, error) {
	body, err := b.format.encode(events)
	if err != nil {
		return nil, err
	}
	digest := blake3.Sum256(body)

	encoded, err := b.encoding.encode(body)
	if err != nil {
		return nil, err
	}

	source := b.source
	if uploadContext.Source != "" {
		source = uploadContext.Source
	}
	target := b.url
	target.RawQuery = query(source, uploadContext).Encode()

	request, err := http.NewRequest(http.MethodPost, target.String(), bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	header := request.Header
	header.Set("Content-Type", b.format.contentType())
	header.Set("User-Agent", b.userAgent)
	header.Set(HeaderAPIKey, b.clientToken.String())
	header.Set(HeaderOrigin, source)
	if uploadContext.SDKVersion != "" {
		header.Set(HeaderOriginVersion, uploadContext.SDKVersion)
	}
	header.Set(upload.RequestIDHeader, uuid.NewString())
	header.Set(HeaderBatchDigest, hex.EncodeToString(digest[:]))
	if value := b.encoding.header(); value != "" {
		header.Set("Content-Encoding", value)
	}
	return request, nil
}

// query carries the source and the reserved tags that identify the
// sender.
func query(source string, uploadContext upload.Context) url.Values {
	var tags []string
	for _, tag := range []struct{ key, value string }{
		{"service", uploadContext.Service},
		{"version", uploadContext.Version},
		{"sdk_version", uploadContext.SDKVersion},
		{"env", uploadContext.Env},
	} {
		if tag.value != "" {
			tags = append(tags, tag.key+":"+tag.value)
		}
	}
	values := url.Values{"ddsource": []string{source}}
	if len(tags) > 0 {
		values.Set("ddtags", strings.Join(tags, ","))
	}
	return values
}
