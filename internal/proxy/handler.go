package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/music-hub/internal/blobstore"
	"github.com/any-hub/music-hub/internal/logging"
	"github.com/any-hub/music-hub/internal/server"
)

// Handler exposes the Dispatcher over Fiber. Every request is turned into an
// http.Request and sent through a client whose transport is the Dispatcher,
// so the HTTP surface sees exactly what the player itself would see.
type Handler struct {
	dispatcher *Dispatcher
	shell      *http.Client
	stream     *http.Client
	upstream   *url.URL
	logger     *logrus.Logger
}

// NewHandler constructs a proxy handler. Shell assets are fetched with
// shellTimeout; audio streams and offline tracks use streamTimeout, where 0
// means no limit. Redirects are passed back to the caller instead of being
// followed.
func NewHandler(dispatcher *Dispatcher, upstream *url.URL, shellTimeout, streamTimeout time.Duration, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{
		dispatcher: dispatcher,
		shell:      newDispatchClient(dispatcher, shellTimeout),
		stream:     newDispatchClient(dispatcher, streamTimeout),
		upstream:   upstream,
		logger:     logger,
	}
}

func newDispatchClient(dispatcher *Dispatcher, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: dispatcher,
		Timeout:   timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Handle implements server.ProxyHandler for shell assets: the request path is
// resolved against the shell upstream and dispatched cache-first.
func (h *Handler) Handle(c fiber.Ctx) error {
	return h.serve(c, resolveUpstreamURL(h.upstream, c), h.shell)
}

// HandleOffline serves /-/offline/:id by dispatching the matching offline address.
func (h *Handler) HandleOffline(c fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return writeError(c, fiber.StatusNotFound, "offline_track_not_found")
	}
	target, err := url.Parse(h.dispatcher.Scheme().Address(id))
	if err != nil {
		return writeError(c, fiber.StatusNotFound, "offline_track_not_found")
	}
	return h.Serve(c, target)
}

// Serve dispatches target with the incoming method, headers and body and
// streams the response back. It is used for playback, so the stream timeout
// applies.
func (h *Handler) Serve(c fiber.Ctx, target *url.URL) error {
	return h.serve(c, target, h.stream)
}

func (h *Handler) serve(c fiber.Ctx, target *url.URL, client *http.Client) (err error) {
	started := time.Now()
	requestID := server.RequestID(c)
	defer func() {
		if r := recover(); r != nil {
			err = h.respondPanic(c, target, r, requestID)
		}
	}()

	req, err := h.buildRequest(c, target)
	if err != nil {
		h.logResult(c.Method(), target, "", requestID, 0, false, started, err)
		return writeError(c, fiber.StatusBadRequest, "invalid_request")
	}

	resp, err := client.Do(req)
	if err != nil {
		route := string(h.dispatcher.Classify(req))
		h.logResult(c.Method(), target, route, requestID, 0, false, started, err)
		if errors.Is(err, blobstore.ErrIOFailure) {
			return writeError(c, fiber.StatusInternalServerError, "store_read_failed")
		}
		return writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	defer resp.Body.Close()

	route := resp.Header.Get(HeaderRoute)
	hit := resp.Header.Get(HeaderCacheHit) == "true"

	copyResponseHeaders(c, resp.Header)
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.StatusCode)

	if c.Method() == http.MethodHead {
		h.logResult(c.Method(), target, route, requestID, resp.StatusCode, hit, started, nil)
		return nil
	}

	_, err = io.Copy(c.Response().BodyWriter(), resp.Body)
	h.logResult(c.Method(), target, route, requestID, resp.StatusCode, hit, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("proxy stream failed: %v", err))
	}
	return nil
}

func (h *Handler) buildRequest(c fiber.Ctx, target *url.URL) (*http.Request, error) {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if target == nil {
		return nil, errors.New("target url required")
	}

	req, err := http.NewRequestWithContext(ctx, c.Method(), target.String(), bytesReader(c.Body()))
	if err != nil {
		return nil, err
	}
	server.CopyHeaders(req.Header, fiberHeadersAsHTTP(c))
	req.Header.Del("Accept-Encoding")
	req.Header.Del("Host")
	if target.Host != "" {
		req.Host = target.Host
	}
	if ip := c.IP(); ip != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			req.Header.Set("X-Forwarded-For", ip)
		}
	}
	return req, nil
}

func (h *Handler) respondPanic(c fiber.Ctx, target *url.URL, recovered any, requestID string) error {
	fields := logrus.Fields{"action": "proxy"}
	if target != nil {
		fields["target"] = target.String()
	}
	if requestID != "" {
		fields["request_id"] = requestID
		c.Set("X-Request-ID", requestID)
	}
	h.logger.WithFields(fields).WithError(fmt.Errorf("panic: %v", recovered)).Error("handler_panic")
	return writeError(c, fiber.StatusInternalServerError, "handler_panic")
}

func (h *Handler) logResult(
	method string,
	target *url.URL,
	route string,
	requestID string,
	status int,
	cacheHit bool,
	started time.Time,
	err error,
) {
	raw := ""
	if target != nil {
		raw = target.String()
	}
	fields := logging.RequestFields(route, method, raw, cacheHit)
	fields["action"] = "proxy"
	fields["upstream_status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("proxy_failed")
		return
	}
	h.logger.WithFields(fields).Info("proxy_complete")
}

func writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func resolveUpstreamURL(base *url.URL, c fiber.Ctx) *url.URL {
	uri := c.Request().URI()
	clean := normalizeRequestPath(string(uri.Path()))
	relative := &url.URL{Path: clean}
	if query := uri.QueryString(); len(query) > 0 {
		relative.RawQuery = string(query)
	}
	return base.ResolveReference(relative)
}

func normalizeRequestPath(raw string) string {
	if raw == "" {
		raw = "/"
	}
	clean := path.Clean("/" + raw)
	if strings.HasSuffix(raw, "/") && clean != "/" {
		clean += "/"
	}
	return clean
}

func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(b)
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
}
