package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/collectible-requests/internal/config"
)

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) { cw.status = code; cw.ResponseWriter.WriteHeader(code) }
func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.limit <= 0 || cw.size < cw.limit {
		remain := cw.limit - cw.size
		if cw.limit <= 0 {
			cw.buf.Write(b)
		} else if remain > 0 {
			if int64(len(b)) <= remain {
				cw.buf.Write(b)
			} else {
				cw.buf.Write(b[:remain])
			}
		}
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:8+len(hdrJSON)], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	hdr := make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &hdr); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, hdr, bs[8+hlen:], true
}

// ResponseCache stores successful GET responses in Redis.  Each entry is
// keyed by caller and actual URL, and registered under the tags of the
// view it renders so writes can drop every affected copy.
type ResponseCache struct {
	cfg config.CacheConfig
	rdb *redis.Client
}

// NewResponseCache returns a cache.  A nil client or a disabled config
// yields a pass-through cache whose invalidations are no-ops.
func NewResponseCache(cfg config.CacheConfig, rdb *redis.Client) *ResponseCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "cache"
	}
	return &ResponseCache{cfg: cfg, rdb: rdb}
}

func (rc *ResponseCache) enabled() bool { return rc != nil && rc.cfg.Enabled && rc.rdb != nil }

// Cache tags.  A view carries exactly one.
const (
	tagShowcase     = "showcase"
	tagAdminInbox   = "requests:admin"
	tagOwnerListFmt = "requests:owner:%d"
	tagRequestFmt   = "request:%d"
)

// viewTag maps a URL path onto the tag of the view it renders.  Paths
// with no tag are never cached.
func viewTag(path string, c echo.Context) string {
	seg := strings.Split(strings.Trim(path, "/"), "/")
	if len(seg) < 2 || seg[0] != "v1" {
		return ""
	}
	switch {
	case seg[1] == "showcase" && len(seg) <= 3:
		return tagShowcase
	case seg[1] == "requests" && len(seg) == 2:
		if id, ok := CurrentIdentity(c); ok {
			return fmt.Sprintf(tagOwnerListFmt, id.UserID)
		}
	case seg[1] == "requests" && len(seg) == 3:
		if id, err := strconv.ParseUint(seg[2], 10, 64); err == nil {
			return fmt.Sprintf(tagRequestFmt, id)
		}
	case len(seg) >= 3 && seg[1] == "admin" && seg[2] == "requests":
		if len(seg) == 3 {
			return tagAdminInbox
		}
		if len(seg) == 4 {
			if id, err := strconv.ParseUint(seg[3], 10, 64); err == nil {
				return fmt.Sprintf(tagRequestFmt, id)
			}
		}
	}
	return ""
}

func (rc *ResponseCache) key(c echo.Context, tag string) string {
	actor := actorKey(c)
	if tag == tagShowcase {
		actor = "public"
	}
	sum := sha1.Sum([]byte(c.Request().URL.Path + "?" + c.Request().URL.RawQuery))
	return fmt.Sprintf("%s:%s:%x", rc.cfg.Prefix, actor, sum[:])
}

func (rc *ResponseCache) tagKey(tag string) string { return rc.cfg.Prefix + ":tag:" + tag }

// Middleware serves cached copies and records new ones.  It must run after
// JWTAuth on authenticated routes so entries are per caller.
func (rc *ResponseCache) Middleware() echo.MiddlewareFunc {
	if !rc.enabled() {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	maxBody := int64(rc.cfg.MaxBodyBytes)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rc.cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}
			tag := viewTag(c.Request().URL.Path, c)
			if tag == "" {
				return next(c)
			}

			ctx := c.Request().Context()
			key := rc.key(c, tag)

			if bs, err := rc.rdb.Get(ctx, key).Bytes(); err == nil {
				if status, hdr, body, ok := decodePayload(bs); ok {
					for k, vals := range hdr {
						if strings.EqualFold(k, echo.HeaderContentLength) {
							continue
						}
						for _, v := range vals {
							c.Response().Header().Add(k, v)
						}
					}
					c.Response().Header().Set("X-Cache", "HIT")
					c.Response().WriteHeader(status)
					if len(body) > 0 {
						_, _ = c.Response().Write(body)
					}
					return nil
				}
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			if cw.status != http.StatusOK || (maxBody > 0 && cw.size > maxBody) {
				return nil
			}

			hdr := c.Response().Header().Clone()
			hdr.Del("X-Cache")
			payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes())
			if err != nil {
				return nil
			}
			bg := context.Background()
			pipe := rc.rdb.TxPipeline()
			pipe.Set(bg, key, payload, rc.cfg.TTL)
			pipe.SAdd(bg, rc.tagKey(tag), key)
			pipe.Expire(bg, rc.tagKey(tag), rc.cfg.TTL)
			if _, err := pipe.Exec(bg); err != nil {
				c.Logger().Warnf("cache: store %s: %v", key, err)
			}
			return nil
		}
	}
}

// InvalidateRequest drops the detail views of a request and the listings
// that show it.
func (rc *ResponseCache) InvalidateRequest(ctx context.Context, requestID, ownerID uint64) {
	rc.drop(ctx,
		fmt.Sprintf(tagRequestFmt, requestID),
		fmt.Sprintf(tagOwnerListFmt, ownerID),
		tagAdminInbox)
}

// InvalidateShowcase drops every cached catalog view.
func (rc *ResponseCache) InvalidateShowcase(ctx context.Context) {
	rc.drop(ctx, tagShowcase)
}

func (rc *ResponseCache) drop(ctx context.Context, tags ...string) {
	if !rc.enabled() {
		return
	}
	for _, tag := range tags {
		tk := rc.tagKey(tag)
		keys, err := rc.rdb.SMembers(ctx, tk).Result()
		if err != nil {
			log.Printf("cache: read tag %s: %v", tag, err)
			continue
		}
		keys = append(keys, tk)
		if err := rc.rdb.Del(ctx, keys...).Err(); err != nil {
			log.Printf("cache: invalidate tag %s: %v", tag, err)
		}
	}
}
