package http

import (
	"errors"
	"log"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/shinyes/vidstore/internal/config"
	"github.com/shinyes/vidstore/internal/models"
	"github.com/shinyes/vidstore/internal/service"
)

func NewRouter(cfg config.Config, files *service.FileStore, videos *service.VideoService) *fiber.App {
	fiberCfg := fiber.Config{}
	if cfg.BodyLimitMB > 0 {
		fiberCfg.BodyLimit = cfg.BodyLimitMB * 1024 * 1024
	}
	app := fiber.New(fiberCfg)
	app.Use(cors.New())

	app.Get("/api/v1/instance/profile", func(c *fiber.Ctx) error {
		return c.JSON(profileResponse{
			Version:     cfg.Version,
			Backend:     files.Backend(),
			QuotaBytes:  models.Int64ToString(files.Grant().QuotaBytes),
			Initialized: files.Initialized(),
		})
	})

	app.Get("/files/*", serveFile(files))

	api := app.Group("/api/v1", AuthMiddleware(cfg.APITokenHash))

	api.Post("/videos", func(c *fiber.Ctx) error {
		var req saveVideoRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		if req.URL == "" {
			return badRequest(c, "url is required")
		}

		entry, err := videos.SaveVideo(c.Context(), req.URL, req.Filename)
		if err != nil {
			return writeServiceError(c, err)
		}
		accessURL, err := videos.GetVideoURL(c.Context(), req.Filename)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(videoResponse{
			Video: toAPIVideo(entry, accessURL),
		})
	})

	api.Get("/videos", func(c *fiber.Ctx) error {
		filter, err := service.CompileEntryFilter(c.Query("filter"))
		if err != nil {
			return badRequest(c, err.Error())
		}
		if err := videos.Ready(c.Context()); err != nil {
			return writeServiceError(c, err)
		}
		entries, err := files.List(c.Context(), service.VideoPathPrefix, filter)
		if err != nil {
			return writeServiceError(c, err)
		}
		out := make([]apiVideo, 0, len(entries))
		for _, entry := range entries {
			out = append(out, toAPIVideo(entry, ""))
		}
		return c.JSON(listVideosResponse{Videos: out})
	})

	api.Get("/videos/:filename", func(c *fiber.Ctx) error {
		p, err := videoPathParam(c)
		if err != nil {
			return writeServiceError(c, err)
		}
		if err := videos.Ready(c.Context()); err != nil {
			return writeServiceError(c, err)
		}
		entry, err := files.Stat(c.Context(), p)
		if err != nil {
			return writeServiceError(c, err)
		}
		accessURL, err := files.ReadURL(c.Context(), p)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(videoResponse{Video: toAPIVideo(entry, accessURL)})
	})

	api.Get("/videos/:filename/url", func(c *fiber.Ctx) error {
		filename, err := url.PathUnescape(c.Params("filename"))
		if err != nil {
			return badRequest(c, "invalid filename")
		}
		accessURL, err := videos.GetVideoURL(c.Context(), filename)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(videoURLResponse{URL: accessURL})
	})

	api.Delete("/videos/:filename", func(c *fiber.Ctx) error {
		p, err := videoPathParam(c)
		if err != nil {
			return writeServiceError(c, err)
		}
		if err := videos.Ready(c.Context()); err != nil {
			return writeServiceError(c, err)
		}
		if err := files.Delete(c.Context(), p); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	api.Get("/storage/usage", func(c *fiber.Ctx) error {
		if err := videos.Ready(c.Context()); err != nil {
			return writeServiceError(c, err)
		}
		usage, err := files.Usage(c.Context())
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(toStorageUsageResponse(usage))
	})

	return app
}

func videoPathParam(c *fiber.Ctx) (string, error) {
	filename, err := url.PathUnescape(c.Params("filename"))
	if err != nil {
		return "", service.ErrInvalidFilename
	}
	return service.VideoPath(filename)
}

func writeServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidPath),
		errors.Is(err, service.ErrInvalidFilename),
		errors.Is(err, service.ErrInvalidSourceURL):
		return badRequest(c, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return notFound(c, err.Error())
	case errors.Is(err, service.ErrDownloadFailed):
		var downloadErr *service.DownloadFailedError
		status := 0
		if errors.As(err, &downloadErr) {
			status = downloadErr.Status
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"message":        err.Error(),
			"upstreamStatus": status,
		})
	case errors.Is(err, service.ErrQuotaExceeded):
		return c.Status(fiber.StatusInsufficientStorage).JSON(fiber.Map{
			"message": err.Error(),
		})
	case errors.Is(err, service.ErrNotInitialized), errors.Is(err, service.ErrStorageUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"message": err.Error(),
		})
	default:
		log.Printf("request %s %s failed: %v", c.Method(), c.Path(), err)
		return internalError(c, err)
	}
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": message,
	})
}

func notFound(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"message": message,
	})
}

func internalError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"message": err.Error(),
	})
}
