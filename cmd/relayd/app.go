package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/felixgeelhaar/relay"
	"github.com/felixgeelhaar/relay/config"
	"github.com/felixgeelhaar/relay/kernel"
	"github.com/felixgeelhaar/relay/logging"
	"github.com/felixgeelhaar/relay/middleware"
	"github.com/felixgeelhaar/relay/protocol"
	"github.com/felixgeelhaar/relay/transport"
)

// shutdownGrace bounds how long fx waits for OnStop hooks. It covers the
// longest HTTP drain the config allows by default.
const shutdownGrace = 45 * time.Second

// Module returns the fx options that assemble relayd.
func Module(configPath string) fx.Option {
	return fx.Options(
		fx.Provide(
			func() (*config.Config, error) { return config.Load(configPath) },
			provideLogger,
			provideRegistry,
			provideTracerProvider,
			providePipeline,
			provideTransport,
		),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l}
		}),
		fx.Invoke(registerHooks),
		fx.StopTimeout(shutdownGrace),
	)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Logging)
}

type registryOut struct {
	fx.Out
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

func provideRegistry() registryOut {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registryOut{Registerer: reg, Gatherer: reg}
}

func provideTracerProvider(lc fx.Lifecycle, cfg *config.Config) trace.TracerProvider {
	tc := cfg.Observability.Tracing
	if !tc.Enabled {
		return noop.NewTracerProvider()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", tc.ServiceName))),
	)
	lc.Append(fx.StopHook(tp.Shutdown))
	return tp
}

type pipelineIn struct {
	fx.In
	Config         *config.Config
	Logger         *zap.Logger
	Registerer     prometheus.Registerer
	TracerProvider trace.TracerProvider
}

func providePipeline(in pipelineIn) (*kernel.Pipeline, error) {
	return buildPipeline(in.Config, in.Logger, in.Registerer, in.TracerProvider)
}

// buildPipeline assembles the middleware queue described by cfg. Order
// matters: recovery and request IDs wrap everything, observability sees
// every outcome, cheap rejections run before authentication, and rate
// limiting runs after it so clients can be keyed by identity.
func buildPipeline(cfg *config.Config, zl *zap.Logger, reg prometheus.Registerer, tp trace.TracerProvider) (*kernel.Pipeline, error) {
	logger := middleware.NewZapLogger(zl)
	mw := cfg.Middleware

	entries := []kernel.Middleware{
		middleware.Recover(),
		middleware.RequestID(),
	}

	if m := cfg.Observability.Metrics; m.Enabled {
		entries = append(entries, middleware.Metrics(
			middleware.WithRegisterer(reg),
			middleware.WithNamespace(m.Namespace),
			middleware.WithMethodLimit(m.MaxMethods),
		))
	}
	if t := cfg.Observability.Tracing; t.Enabled {
		entries = append(entries, middleware.OTel(
			middleware.WithTracerProvider(tp),
			middleware.WithOTelServiceName(t.ServiceName),
		))
	}

	entries = append(entries, middleware.Logging(logger))

	if mw.Timeout > 0 {
		entries = append(entries, middleware.Timeout(mw.Timeout.Std()))
	}
	if mw.SizeLimit > 0 {
		entries = append(entries, middleware.SizeLimit(mw.SizeLimit, middleware.WithSizeLimitLogger(logger)))
	}

	entries = append(entries, middleware.Ping())

	auth, err := authenticator(mw.Auth)
	if err != nil {
		return nil, err
	}
	if auth != nil {
		entries = append(entries, middleware.Auth(auth,
			middleware.WithAuthLogger(logger),
			middleware.WithAuthSkipMethods(mw.Auth.SkipMethods...),
		))
	}

	if rl := mw.RateLimit; rl.Enabled {
		opt := middleware.WithRateLimitLogger(logger)
		switch rl.By {
		case "method":
			entries = append(entries, middleware.RateLimitByMethod(rl.Rate, rl.Burst, opt))
		case "client":
			entries = append(entries, middleware.RateLimitByClient(rl.Rate, rl.Burst, middleware.ClientFromIdentity, opt))
		default:
			entries = append(entries, middleware.RateLimit(rl.Rate, rl.Burst, opt))
		}
	}

	// Only HTTP serves requests concurrently, so only there can a cancel
	// arrive while its target is still running.
	if cfg.Server.Transport == config.TransportHTTP {
		entries = append(entries, middleware.Cancellation(middleware.NewCancellations(), middleware.WithCancelLogger(logger)))
	}

	if mw.Echo {
		entries = append(entries, middleware.Echo())
	}

	return relay.NewPipeline(relay.MethodNotFound(), entries...), nil
}

// authenticator returns nil when authentication is disabled.
func authenticator(cfg config.AuthConfig) (middleware.Authenticator, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "apikey":
		keys := make(map[string]*middleware.Identity, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			keys[k.Key] = &middleware.Identity{ID: k.Subject, Name: k.Name}
		}
		return middleware.ChainAuthenticators(
			middleware.APIKeyAuthenticator(protocol.MetaAPIKey, middleware.StaticAPIKeys(keys)),
			middleware.BearerTokenAuthenticator(middleware.StaticTokens(keys)),
		), nil
	case "jwt":
		opts := []jwt.ParserOption{
			jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
			jwt.WithExpirationRequired(),
		}
		if cfg.JWT.Issuer != "" {
			opts = append(opts, jwt.WithIssuer(cfg.JWT.Issuer))
		}
		if cfg.JWT.Audience != "" {
			opts = append(opts, jwt.WithAudience(cfg.JWT.Audience))
		}
		return middleware.JWTAuthenticator(middleware.HMACKey([]byte(cfg.JWT.Secret)), opts...), nil
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Type)
	}
}

type transportIn struct {
	fx.In
	Config   *config.Config
	Gatherer prometheus.Gatherer
}

func provideTransport(in transportIn) (transport.Transport, error) {
	return newTransport(in.Config, in.Gatherer)
}

func newTransport(cfg *config.Config, gatherer prometheus.Gatherer) (transport.Transport, error) {
	sc := cfg.Server
	switch sc.Transport {
	case config.TransportStdio:
		return transport.NewStdio(), nil

	case config.TransportHTTP:
		opts := []transport.HTTPOption{
			transport.WithReadTimeout(sc.ReadTimeout.Std()),
			transport.WithWriteTimeout(sc.WriteTimeout.Std()),
			transport.WithShutdownTimeout(sc.Shutdown.Timeout.Std()),
			transport.WithShutdownDrainDelay(sc.Shutdown.DrainDelay.Std()),
		}
		if sc.Path != "" {
			opts = append(opts, transport.WithPath(sc.Path))
		}
		if sc.MaxBodyBytes > 0 {
			opts = append(opts, transport.WithMaxBodyBytes(sc.MaxBodyBytes))
		}
		if sc.CORS.Enabled {
			cors := transport.DefaultCORSConfig()
			if len(sc.CORS.AllowOrigins) > 0 {
				cors.AllowOrigins = sc.CORS.AllowOrigins
			}
			cors.AllowCredentials = sc.CORS.AllowCredentials
			opts = append(opts, transport.WithCORS(cors))
		}
		if m := cfg.Observability.Metrics; m.Enabled {
			opts = append(opts, transport.WithMetricsHandler(m.Path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
		}
		return transport.NewHTTP(sc.Addr, opts...), nil

	case config.TransportWebSocket:
		opts := []transport.WebSocketOption{
			transport.WithWebSocketReadTimeout(sc.ReadTimeout.Std()),
			transport.WithWebSocketWriteTimeout(sc.WriteTimeout.Std()),
		}
		if sc.Path != "" {
			opts = append(opts, transport.WithWebSocketPath(sc.Path))
		}
		return transport.NewWebSocket(sc.Addr, opts...), nil

	default:
		return nil, fmt.Errorf("unknown transport %q", sc.Transport)
	}
}

type hooksIn struct {
	fx.In
	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Config     *config.Config
	Logger     *zap.Logger
	Transport  transport.Transport
	Pipeline   *kernel.Pipeline
}

// registerHooks serves the pipeline for the lifetime of the app. When the
// transport stops on its own, for example at stdin EOF, the app shuts down.
func registerHooks(in hooksIn) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	in.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			in.Logger.Info("relay starting",
				zap.String("transport", in.Config.Server.Transport),
				zap.String("addr", in.Transport.Addr()),
				zap.Int("middleware", in.Pipeline.Len()),
			)
			go func() {
				defer close(done)
				err := in.Transport.Serve(ctx, in.Pipeline)
				if err != nil && !errors.Is(err, context.Canceled) {
					in.Logger.Error("transport failed", zap.Error(err))
					_ = in.Shutdowner.Shutdown(fx.ExitCode(1))
					return
				}
				if ctx.Err() == nil {
					_ = in.Shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			in.Logger.Info("relay stopping")
			cancel()
			defer func() { _ = in.Logger.Sync() }()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
