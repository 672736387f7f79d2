package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/IMBotPlatform/Clovers/pkg/botcore"
	"github.com/IMBotPlatform/Clovers/pkg/platform/webhook"
	"github.com/IMBotPlatform/Clovers/pkg/platform/ws"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the webhook callback and WebSocket endpoints",
	Long: `Starts one dispatcher per platform:

  webhook  POST callbacks, replies are pushed to the message's response_url
  ws       one JSON or plain-text frame per message, replies on the same connection

Either endpoint is disabled when its listen address is empty.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var servers []*endpoint

		if cfg.Webhook.Listen != "" {
			adapter := webhook.NewAdapter(webhook.NewClient(cfg.Webhook.Timeout),
				botcore.WithAdapterLogger(logger.Named("webhook")))
			d, err := setup(ctx, adapter, botcore.WithExtractor(webhook.Extract))
			if err != nil {
				return err
			}
			bot := webhook.NewBot(d,
				webhook.WithLogger(logger.Named("webhook")),
				webhook.WithAckWait(cfg.Webhook.AckWait),
				webhook.WithDeduper(webhook.NewDeduper(cfg.Webhook.DedupeTTL)),
			)
			e := newEndpoint("webhook", cfg.Webhook.Listen, cfg.Webhook.Path, bot, d)
			e.drain = bot.Wait
			servers = append(servers, e)
		}
		if cfg.WS.Listen != "" {
			d, err := setup(ctx, ws.NewAdapter(botcore.WithAdapterLogger(logger.Named("ws"))))
			if err != nil {
				return err
			}
			srv := ws.NewServer(d,
				ws.WithLogger(logger.Named("ws")),
				ws.WithCheckOrigin(ws.AllowOrigins(cfg.WS.Origins...)),
				ws.WithReadLimit(cfg.WS.ReadLimit),
				ws.WithMaxInflight(cfg.WS.MaxInflight),
			)
			servers = append(servers, newEndpoint("ws", cfg.WS.Listen, cfg.WS.Path, srv, d))
		}
		if len(servers) == 0 {
			return errors.New("no endpoint configured: set webhook.listen or ws.listen")
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, s := range servers {
			g.Go(s.serve)
		}
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			var errs []error
			for _, s := range servers {
				errs = append(errs, s.shutdown(sctx))
			}
			return errors.Join(errs...)
		})
		return g.Wait()
	},
}

// endpoint 把一个 HTTP 监听与其分发器绑定在一起启停。
type endpoint struct {
	name       string
	server     *http.Server
	dispatcher *botcore.Dispatcher
	drain      func(ctx context.Context) error // 等待请求结束后仍在进行的后台分发
}

func newEndpoint(name, listen, path string, h http.Handler, d *botcore.Dispatcher) *endpoint {
	mux := http.NewServeMux()
	mux.Handle(path, h)
	return &endpoint{
		name:       name,
		server:     &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		dispatcher: d,
	}
}

func (e *endpoint) serve() error {
	logger.Info("listening", zap.String("endpoint", e.name), zap.String("addr", e.server.Addr))
	if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (e *endpoint) shutdown(ctx context.Context) error {
	err := e.server.Shutdown(ctx)
	if e.drain != nil {
		err = errors.Join(err, e.drain(ctx))
	}
	if derr := e.dispatcher.Shutdown(ctx); derr != nil && !errors.Is(derr, botcore.ErrNotRunning) {
		err = errors.Join(err, derr)
	}
	logger.Info("stopped", zap.String("endpoint", e.name))
	return err
}
