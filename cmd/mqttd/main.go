package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	mqtt "github.com/veremchuk/mqtt"
)

var (
	flagConfig        string
	flagListen        string
	flagWSListen      string
	flagMetricsListen string
	flagSQLitePath    string
	flagLogLevel      string
	flagLogFile       string
)

func main() {
	root := &cobra.Command{
		Use:   "mqttd",
		Short: "A dual-version MQTT broker",
		Long:  "mqttd serves MQTT 3.1.1 and 5.0 clients over TCP and WebSocket,\nnegotiating the version each connection declares in its CONNECT.",
		RunE:  run,
	}

	root.Flags().StringVarP(&flagConfig, "config", "c", "", "path to a YAML options file")
	root.Flags().StringVar(&flagListen, "listen", ":1883", "TCP listen address")
	root.Flags().StringVar(&flagWSListen, "ws-listen", "", "WebSocket listen address (empty disables)")
	root.Flags().StringVar(&flagMetricsListen, "metrics-listen", "", "Prometheus metrics address (empty disables)")
	root.Flags().StringVar(&flagSQLitePath, "sqlite", "", "SQLite session store path (empty keeps sessions in memory)")
	root.Flags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.Flags().StringVar(&flagLogFile, "log-file", "", "log file with rotation (empty logs to stderr)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	opts, err := buildOptions()
	if err != nil {
		return err
	}

	logger, err := buildLogger()
	if err != nil {
		return err
	}
	opts.Logger = logger

	if flagSQLitePath != "" {
		store, err := mqtt.NewSQLiteSessionStore(flagSQLitePath)
		if err != nil {
			return fmt.Errorf("open session store: %w", err)
		}
		defer store.Close()
		opts.SessionStore = store
	}

	var prom *mqtt.PrometheusMetrics
	if flagMetricsListen != "" {
		prom = mqtt.NewPrometheusMetrics(nil)
		opts.Metrics = prom
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker := newBroker(opts, logger)

	tcpListener, err := mqtt.NewTCPListener(flagListen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", flagListen, err)
	}
	defer tcpListener.Close()
	go broker.serve(ctx, tcpListener)
	logger.Info("listening", mqtt.LogFields{"transport": "tcp", "addr": flagListen})

	if flagWSListen != "" {
		handler := mqtt.NewWSHandler(func(conn mqtt.Conn) {
			broker.handle(ctx, conn)
		})
		srv := &http.Server{Addr: flagWSListen, Handler: handler}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("websocket server failed", mqtt.LogFields{mqtt.LogFieldError: err.Error()})
			}
		}()
		defer srv.Close()
		logger.Info("listening", mqtt.LogFields{"transport": "websocket", "addr": flagWSListen})
	}

	if flagMetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(prom.Registry(), promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: flagMetricsListen, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", mqtt.LogFields{mqtt.LogFieldError: err.Error()})
			}
		}()
		defer srv.Close()
	}

	go broker.cleanupLoop(ctx)

	<-ctx.Done()
	logger.Info("shutting down", nil)
	broker.shutdown()
	return nil
}

func buildOptions() (*mqtt.Options, error) {
	if flagConfig != "" {
		return mqtt.LoadOptions(flagConfig)
	}
	return mqtt.DefaultOptions(), nil
}

func buildLogger() (mqtt.Logger, error) {
	level := parseLevel(flagLogLevel)
	if flagLogFile != "" {
		return mqtt.NewRotatingLogger(flagLogFile, level, 100, 5), nil
	}
	return mqtt.NewProductionLogger(level)
}

func parseLevel(s string) mqtt.LogLevel {
	switch s {
	case "debug":
		return mqtt.LogLevelDebug
	case "warn":
		return mqtt.LogLevelWarn
	case "error":
		return mqtt.LogLevelError
	default:
		return mqtt.LogLevelInfo
	}
}

// broker fans published messages out to every connected session whose
// subscriptions match.
type broker struct {
	opts   *mqtt.Options
	logger mqtt.Logger

	mu       sync.RWMutex
	sessions map[*mqtt.Dispatcher]struct{}
}

func newBroker(opts *mqtt.Options, logger mqtt.Logger) *broker {
	return &broker{
		opts:     opts,
		logger:   logger,
		sessions: make(map[*mqtt.Dispatcher]struct{}),
	}
}

func (b *broker) serve(ctx context.Context, ln mqtt.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Warn("accept failed", mqtt.LogFields{mqtt.LogFieldError: err.Error()})
			continue
		}
		go b.handle(ctx, conn)
	}
}

func (b *broker) handle(ctx context.Context, conn net.Conn) {
	d := mqtt.NewDispatcher(conn, mqtt.RoleServer, mqtt.RouterFunc(b.route), b.opts)

	b.mu.Lock()
	b.sessions[d] = struct{}{}
	b.mu.Unlock()

	err := d.Run(ctx)

	b.mu.Lock()
	delete(b.sessions, d)
	b.mu.Unlock()

	if err != nil {
		b.logger.Warn("connection ended", mqtt.LogFields{
			mqtt.LogFieldClientID: d.Session().ClientID(),
			mqtt.LogFieldError:    err.Error(),
		})
	}

	// An abnormal close publishes the will on the dead client's behalf.
	if will := d.Session().TakeWill(); will != nil {
		if err := b.route(ctx, d.Session().ClientID(), will.ToMessage()); err != nil {
			b.logger.Warn("will delivery failed", mqtt.LogFields{mqtt.LogFieldError: err.Error()})
		}
	}
}

// route delivers one published message to every matching subscriber.
func (b *broker) route(ctx context.Context, publisherID string, msg *mqtt.Message) error {
	b.mu.RLock()
	targets := make([]*mqtt.Dispatcher, 0, len(b.sessions))
	for d := range b.sessions {
		targets = append(targets, d)
	}
	b.mu.RUnlock()

	for _, d := range targets {
		session := d.Session()
		if !session.Connected() || session.ClientID() == publisherID {
			continue
		}
		sub, ok := bestMatch(session.Subscriptions(), msg.Topic)
		if !ok {
			continue
		}

		out := *msg
		if sub.QoS < out.QoS {
			out.QoS = sub.QoS
		}
		if !sub.RetainAsPublished {
			out.Retain = false
		}
		if _, err := d.Publish(ctx, &out); err != nil {
			b.logger.Debug("delivery skipped", mqtt.LogFields{
				mqtt.LogFieldClientID: session.ClientID(),
				mqtt.LogFieldTopic:    msg.Topic,
				mqtt.LogFieldError:    err.Error(),
			})
		}
	}
	return nil
}

// bestMatch picks the matching subscription with the highest granted QoS.
func bestMatch(subs []mqtt.Subscription, topic string) (mqtt.Subscription, bool) {
	var best mqtt.Subscription
	found := false
	for _, sub := range subs {
		if !mqtt.TopicMatch(sub.TopicFilter, topic) {
			continue
		}
		if !found || sub.QoS > best.QoS {
			best = sub
			found = true
		}
	}
	return best, found
}

// cleanupLoop sweeps expired sessions out of the store.
func (b *broker) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := b.opts.SessionStore.Cleanup(ctx); err != nil {
				b.logger.Warn("session cleanup failed", mqtt.LogFields{mqtt.LogFieldError: err.Error()})
			} else if n > 0 {
				b.logger.Debug("sessions expired", mqtt.LogFields{"count": n})
			}
		}
	}
}

func (b *broker) shutdown() {
	b.mu.RLock()
	targets := make([]*mqtt.Dispatcher, 0, len(b.sessions))
	for d := range b.sessions {
		targets = append(targets, d)
	}
	b.mu.RUnlock()

	for _, d := range targets {
		_ = d.Disconnect(mqtt.ReasonServerShuttingDown)
	}
}
