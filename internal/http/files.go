package http

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/shinyes/vidstore/internal/service"
)

func serveFile(files *service.FileStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := url.PathUnescape(c.Params("*"))
		if err != nil {
			return badRequest(c, "invalid path")
		}

		entry, err := files.Stat(c.Context(), p)
		if err != nil {
			return writeServiceError(c, err)
		}

		start, end, hasRange, err := parseSingleByteRange(c.Get(fiber.HeaderRange), entry.Size)
		if err != nil {
			c.Set(fiber.HeaderContentRange, fmt.Sprintf("bytes */%d", entry.Size))
			return c.Status(fiber.StatusRequestedRangeNotSatisfiable).JSON(fiber.Map{
				"message": err.Error(),
			})
		}

		c.Set(fiber.HeaderAcceptRanges, "bytes")
		c.Set(fiber.HeaderContentType, entry.ContentType)
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`inline; filename="%s"`, entry.Name()))

		if !hasRange {
			rc, _, err := files.Open(c.Context(), entry.Path)
			if err != nil {
				return writeServiceError(c, err)
			}
			// fasthttp closes the stream once the body is sent.
			return c.SendStream(rc, int(entry.Size))
		}

		rc, _, err := files.OpenRange(c.Context(), entry.Path, start, end)
		if err != nil {
			return writeServiceError(c, err)
		}
		c.Set(fiber.HeaderContentRange, fmt.Sprintf("bytes %d-%d/%d", start, end, entry.Size))
		c.Status(fiber.StatusPartialContent)
		return c.SendStream(rc, int(end-start+1))
	}
}

// parseSingleByteRange parses a Range header holding one byte range and
// clips it to size. hasRange is false only when the header is empty.
func parseSingleByteRange(raw string, size int64) (start int64, end int64, hasRange bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, 0, false, nil
	}
	if size <= 0 {
		return 0, 0, true, errors.New("range on empty resource")
	}
	spec, ok := strings.CutPrefix(raw, "bytes=")
	if !ok {
		return 0, 0, true, errors.New("unsupported range unit")
	}
	if strings.Contains(spec, ",") {
		return 0, 0, true, errors.New("multiple ranges are not supported")
	}
	first, last, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return 0, 0, true, errors.New("malformed range")
	}
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)

	if first == "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, true, errors.New("malformed suffix range")
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, true, nil
	}

	start, err = strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, true, errors.New("malformed range start")
	}
	if start >= size {
		return 0, 0, true, errors.New("range start out of bounds")
	}
	end = size - 1
	if last != "" {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil {
			return 0, 0, true, errors.New("malformed range end")
		}
		if end < start {
			return 0, 0, true, errors.New("range end before start")
		}
		if end >= size {
			end = size - 1
		}
	}
	return start, end, true, nil
}
