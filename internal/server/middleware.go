package server

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// RequestIDMiddleware tags every request with an id, reusing the caller's
// X-Request-ID when present.
func RequestIDMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals(requestIDLocal, id)
		c.Set(RequestIDHeader, id)
		return c.Next()
	}
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals(requestIDLocal).(string)
	return id
}

// ZstdMiddleware decompresses request bodies sent with Content-Encoding: zstd.
// Large score matrices compress well. The decompressed body is held to
// maxBytes, like any uncompressed body; maxBytes <= 0 means fiber's default.
func ZstdMiddleware(maxBytes int) fiber.Handler {
	if maxBytes <= 0 {
		maxBytes = fiber.DefaultBodyLimit
	}
	limit := int64(maxBytes)

	return func(c *fiber.Ctx) error {
		if !strings.Contains(strings.ToLower(c.Get(fiber.HeaderContentEncoding)), "zstd") {
			return c.Next()
		}

		r, err := zstd.NewReader(bytes.NewReader(c.Request().Body()), zstd.WithDecoderMaxMemory(uint64(limit)))
		if err != nil {
			log.Error().Err(err).Str("request_id", requestID(c)).Msg("zstd: failed to create reader for request body")
			return fiber.NewError(fiber.StatusBadRequest, "invalid zstd request body")
		}
		defer r.Close()

		out, err := io.ReadAll(io.LimitReader(r, limit+1))
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) || int64(len(out)) > limit {
			log.Warn().Int("limit", maxBytes).Str("request_id", requestID(c)).Msg("zstd: decompressed body over limit")
			return fiber.ErrRequestEntityTooLarge
		}
		if err != nil {
			log.Error().Err(err).Str("request_id", requestID(c)).Msg("zstd: failed to decompress request body")
			return fiber.NewError(fiber.StatusBadRequest, "invalid zstd request body")
		}

		c.Request().SetBody(out)
		c.Request().Header.Set(fiber.HeaderContentLength, strconv.Itoa(len(out)))
		c.Request().Header.Del(fiber.HeaderContentEncoding)
		return c.Next()
	}
}
