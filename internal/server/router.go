package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/asset-delivery/internal/logging"
	"github.com/any-hub/asset-delivery/internal/plugin"
)

// ChannelHandler 描述方法通道的处理方，测试中可以注入假实现。
type ChannelHandler interface {
	Channel() string
	HandleMethodCall(ctx context.Context, call plugin.MethodCall) plugin.Result
}

// AppOptions controls how the Fiber application is assembled.
type AppOptions struct {
	Logger      *logrus.Logger
	Handler     ChannelHandler
	ReadTimeout time.Duration
}

const contextKeyRequestID = "_asset_delivery_request_id"

// NewApp builds a Fiber application exposing the method channel with
// request-id tagging and structured error replies.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("channel handler is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		ReadTimeout:   opts.ReadTimeout,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	app.Post("/channels/:channel", func(c fiber.Ctx) error {
		return handleChannelCall(c, opts)
	})

	return app, nil
}

// requestIDMiddleware 为每个请求生成请求 ID 并写回响应头。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// handleChannelCall 解析调用信封，交给 ChannelHandler 处理并把 Result 映射为 HTTP 响应。
func handleChannelCall(c fiber.Ctx, opts AppOptions) error {
	channel := c.Params("channel")
	if channel != opts.Handler.Channel() {
		return renderChannelUnmapped(c, opts.Logger, channel)
	}

	var call plugin.MethodCall
	if err := json.Unmarshal(c.Body(), &call); err != nil || call.Method == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    plugin.CodeInvalidArgument,
				"message": "request body must be {\"method\": string, \"arguments\": any}",
				"details": nil,
			},
		})
	}

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	started := time.Now()
	result := opts.Handler.HandleMethodCall(ctx, call)

	fields := logging.ChannelFields(channel, call.Method, RequestID(c))
	fields["elapsed_ms"] = time.Since(started).Milliseconds()

	switch {
	case result.NotImplemented:
		opts.Logger.WithFields(fields).Warn("method not implemented")
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "not_implemented"})
	case result.Error != nil:
		fields["code"] = result.Error.Code
		opts.Logger.WithFields(fields).Info("channel call failed")
		return c.Status(statusForCode(result.Error.Code)).JSON(fiber.Map{"error": result.Error})
	default:
		opts.Logger.WithFields(fields).Debug("channel call completed")
		return c.JSON(fiber.Map{"result": result.Value})
	}
}

func statusForCode(code string) int {
	switch code {
	case plugin.CodeAssetNotFound:
		return fiber.StatusNotFound
	case plugin.CodeInvalidArgument:
		return fiber.StatusBadRequest
	case plugin.CodeDetached:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func renderChannelUnmapped(c fiber.Ctx, logger *logrus.Logger, channel string) error {
	logger.WithFields(logrus.Fields{
		"action":  "channel_lookup",
		"channel": channel,
	}).Warn("channel unmapped")

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "channel_unmapped",
	})
}

// RequestID returns the request identifier stored by the middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
