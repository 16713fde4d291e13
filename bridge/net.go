// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package bridge

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/logiface"
)

type (
	// Header is a single header, order is significant.
	Header struct {
		Name  string
		Value string
	}

	// RequestOptions models the options object accepted by REPLETE_REQUEST.
	RequestOptions struct {
		Body            *string
		URL             string
		Method          string
		UserAgent       string
		Socket          string
		Headers         []Header
		Timeout         time.Duration
		FollowRedirects bool
		BinaryResponse  bool
		Insecure        bool
	}

	// RequestResult is the outcome of a request. If Err is set, no other
	// field is meaningful. Headers holds one entry per name, with multiple
	// values joined by ",".
	RequestResult struct {
		Err        error
		Body       string
		BinaryBody []byte
		Headers    []Header
		Status     int
	}

	// Requester performs synchronous HTTP requests.
	Requester struct {
		transport *http.Transport
		logger    *logiface.Logger[logiface.Event]
	}
)

// NewRequester creates a Requester. A nil transport uses a clone of
// [http.DefaultTransport].
func NewRequester(transport *http.Transport) *Requester {
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	return &Requester{transport: transport}
}

// WithLogger returns a shallow copy of the requester that logs requests.
func (x *Requester) WithLogger(logger *logiface.Logger[logiface.Event]) *Requester {
	c := *x
	c.logger = logger
	return &c
}

// Do performs the request, bounded by ctx and opts.Timeout (if non-zero),
// which applies to the whole exchange including reading the body.
func (x *Requester) Do(ctx context.Context, opts RequestOptions) (result RequestResult) {
	started := time.Now()
	defer func() {
		x.logger.Debug().
			Str(`method`, opts.Method).
			Str(`url`, opts.URL).
			Int(`status`, result.Status).
			Dur(`duration`, time.Since(started)).
			Err(result.Err).
			Log(`bridge: request complete`)
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	method := opts.Method
	if method == `` {
		method = http.MethodGet
	}

	var body io.Reader
	if opts.Body != nil {
		body = strings.NewReader(*opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, opts.URL, body)
	if err != nil {
		return RequestResult{Err: err}
	}
	for _, h := range opts.Headers {
		req.Header.Set(h.Name, h.Value)
	}
	if opts.UserAgent != `` {
		req.Header.Set(`User-Agent`, opts.UserAgent)
	}

	transport := x.transport
	if opts.Insecure || opts.Socket != `` {
		transport = transport.Clone()
		defer transport.CloseIdleConnections()
		if opts.Insecure {
			if transport.TLSClientConfig == nil {
				transport.TLSClientConfig = &tls.Config{}
			}
			transport.TLSClientConfig.InsecureSkipVerify = true
		}
		if socket := opts.Socket; socket != `` {
			var dialer net.Dialer
			transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
				return dialer.DialContext(ctx, `unix`, socket)
			}
		}
	}

	client := http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
	}
	if !opts.FollowRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return RequestResult{Err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return RequestResult{Err: err}
	}

	result.Status = resp.StatusCode
	result.Headers = joinHeaders(resp.Header)
	if opts.BinaryResponse {
		result.BinaryBody = b
	} else {
		result.Body = string(b)
	}
	return result
}

func joinHeaders(h http.Header) []Header {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	headers := make([]Header, 0, len(names))
	for _, name := range names {
		headers = append(headers, Header{Name: name, Value: strings.Join(h[name], `,`)})
	}
	return headers
}

// requestOptions reads the options object, returning false if url is
// missing.
func (x *engine) requestOptions(obj *goja.Object) (opts RequestOptions, ok bool) {
	get := func(key string) (goja.Value, bool) {
		v := obj.Get(key)
		if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
			return nil, false
		}
		return v, true
	}

	v, ok := get(`url`)
	if !ok {
		return opts, false
	}
	opts.URL = v.String()

	if v, ok := get(`timeout`); ok {
		if seconds := v.ToFloat(); seconds > 0 {
			opts.Timeout = time.Duration(seconds * float64(time.Second))
		}
	}
	if v, ok := get(`binary-response`); ok {
		opts.BinaryResponse = v.ToBoolean()
	}
	opts.Method = http.MethodGet
	if v, ok := get(`method`); ok {
		opts.Method = v.String()
	}
	if v, ok := get(`body`); ok {
		s := v.String()
		opts.Body = &s
	}
	if v, ok := get(`headers`); ok {
		headers := v.ToObject(x.rt)
		for _, key := range headers.Keys() {
			if hv := headers.Get(key); hv != nil {
				opts.Headers = append(opts.Headers, Header{Name: key, Value: hv.String()})
			}
		}
	}
	if v, ok := get(`follow-redirects`); ok {
		opts.FollowRedirects = v.ToBoolean()
	}
	if v, ok := get(`user-agent`); ok {
		opts.UserAgent = v.String()
	}
	if v, ok := get(`insecure`); ok {
		opts.Insecure = v.ToBoolean()
	}
	if v, ok := get(`socket`); ok {
		opts.Socket = v.String()
	}

	return opts, true
}

// REPLETE_REQUEST(opts) -> {status, headers, body} | {error} | undefined
//
// Blocks the engine goroutine until the request completes.
func (x *engine) request(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) != 1 {
		return goja.Undefined()
	}
	obj, ok := call.Argument(0).(*goja.Object)
	if !ok {
		return goja.Undefined()
	}
	opts, ok := x.requestOptions(obj)
	if !ok {
		return goja.Undefined()
	}

	result := x.registry.requester.Do(x.ctx, opts)

	ret := x.rt.NewObject()
	if result.Err != nil {
		msg := result.Err.Error()
		if errors.Is(result.Err, context.DeadlineExceeded) {
			msg = `timeout: ` + msg
		}
		_ = ret.Set(`error`, msg)
		return ret
	}

	headers := x.rt.NewObject()
	for _, h := range result.Headers {
		_ = headers.Set(h.Name, h.Value)
	}
	_ = ret.Set(`status`, result.Status)
	_ = ret.Set(`headers`, headers)
	if opts.BinaryResponse {
		_ = ret.Set(`body`, x.rt.NewArrayBuffer(result.BinaryBody))
	} else {
		_ = ret.Set(`body`, result.Body)
	}
	return ret
}
