// meshchat is a headless Meshtastic chat daemon: it owns the serial device
// session, persists messages and nodes, tracks delivery over the mesh and
// MQTT, and bridges the broker in proxy-to-client mode.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"meshchat/internal/bus"
	"meshchat/internal/channels"
	"meshchat/internal/config"
	"meshchat/internal/delivery"
	"meshchat/internal/deviceconfig"
	"meshchat/internal/logging"
	"meshchat/internal/mqttproxy"
	"meshchat/internal/notify"
	"meshchat/internal/persistence"
	"meshchat/internal/radio"
	"meshchat/internal/transport"
)

const (
	retentionInterval = time.Hour
	proxyProbePeriod  = 5 * time.Second
)

type paths struct {
	ConfigFile string
	LogFile    string
}

func main() {
	if err := run(); err != nil {
		slog.Error("run meshchat", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "config file path (default: user config dir)")
	serialPort := flag.String("port", "", "serial port override, e.g. /dev/ttyUSB0")
	dbPath := flag.String("db", "", "database path override")
	clearDB := flag.Bool("clear-db", false, "wipe stored messages and nodes, then continue")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := resolvePaths(*configPath)
	if err != nil {
		return fmt.Errorf("resolve paths: %w", err)
	}
	cfg, err := config.Load(p.ConfigFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(*serialPort) != "" {
		cfg.Connection.SerialPort = strings.TrimSpace(*serialPort)
	}
	if strings.TrimSpace(*dbPath) != "" {
		cfg.Storage.DatabasePath = strings.TrimSpace(*dbPath)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging, p.LogFile); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() {
		if closeErr := logMgr.Close(); closeErr != nil {
			slog.Warn("close log manager", "error", closeErr)
		}
	}()
	logger := logMgr.Logger("main")

	dbFile := cfg.Storage.DatabasePath
	if !filepath.IsAbs(dbFile) {
		dbFile = filepath.Join(filepath.Dir(p.ConfigFile), dbFile)
	}
	db, err := persistence.Open(ctx, dbFile)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()
	if *clearDB {
		if err := persistence.ClearDatabase(ctx, db); err != nil {
			return fmt.Errorf("clear database: %w", err)
		}
		logger.Info("database cleared")
	}

	messages := persistence.NewMessageRepo(db)
	nodes := persistence.NewNodeRepo(db)

	messageBus := bus.New(logMgr.Logger("bus"))
	defer messageBus.Close()

	codec, err := radio.NewMeshtasticCodec()
	if err != nil {
		return fmt.Errorf("init codec: %w", err)
	}

	// The channel manager is also the session's uplink directory, so it is
	// built before the service and its admin path is bound afterwards.
	adminPath := &lateAdminSender{}
	channelMgr := channels.NewManager(logMgr.Logger("channels"), messageBus, adminPath)

	serial := transport.NewSerialTransport(cfg.Connection.SerialPort, cfg.Connection.SerialBaud)
	session := radio.NewService(logMgr.Logger("radio"), messageBus, serial, codec, messages, channelMgr)
	adminPath.svc = session

	tracker := delivery.NewTracker(logMgr.Logger("delivery"), messageBus, messages)
	reconciler := deviceconfig.NewReconciler(
		logMgr.Logger("deviceconfig"),
		messageBus,
		session,
		session,
		session.IsConnected,
	)

	notifier := notify.NewService(
		logMgr.Logger("notify"),
		messageBus,
		notify.NewBeeepSender(logMgr.Logger("notify"), "meshchat"),
		nodes,
		channelMgr,
		func() bool { return cfg.Notifications.IncomingMessage },
	)

	writer := persistence.NewWriterQueue(logMgr.Logger("persistence"), 256)
	writer.Start(ctx)
	persistence.StartNodeProjection(ctx, messageBus, writer, nodes)

	go tracker.Run(ctx)
	go reconciler.Run(ctx)
	go channelMgr.Run(ctx)
	go notifier.Run(ctx)
	go runRetention(ctx, logger, writer, messages, cfg.Storage.KeepMessages)
	go superviseProxy(ctx, logMgr.Logger("mqttproxy"), messageBus, codec, session, reconciler, cfg.MQTTProxy.ClientIDPrefix)

	session.Start(ctx)
	logger.Info("meshchat started", "port", cfg.Connection.SerialPort, "db", dbFile)

	<-ctx.Done()
	logger.Info("shutting down")

	return nil
}

// lateAdminSender breaks the construction cycle between the channel manager
// (needs an admin path) and the radio service (needs the channel directory).
// svc is bound before anything runs.
type lateAdminSender struct {
	svc *radio.Service
}

func (l *lateAdminSender) SendAdmin(send radio.AdminSend) <-chan radio.SendResult {
	return l.svc.SendAdmin(send)
}

// runRetention trims the message table down to keepCount rows on startup
// and then once an hour. keepCount zero disables the sweep.
func runRetention(ctx context.Context, logger *slog.Logger, writer *persistence.WriterQueue, messages *persistence.MessageRepo, keepCount int) {
	if keepCount <= 0 {
		return
	}

	sweep := func() {
		writer.Enqueue("retention trim", func(ctx context.Context) error {
			deleted, err := messages.DeleteOldMessages(ctx, keepCount)
			if err != nil {
				return err
			}
			if deleted > 0 {
				logger.Info("old messages trimmed", "deleted", deleted, "keep", keepCount)
			}

			return nil
		})
	}

	sweep()
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

// superviseProxy watches the device-reported MQTT module config and runs
// the broker bridge while proxy-to-client mode is on.
func superviseProxy(
	ctx context.Context,
	logger *slog.Logger,
	messageBus bus.MessageBus,
	codec radio.Codec,
	session *radio.Service,
	reconciler *deviceconfig.Reconciler,
	clientIDPrefix string,
) {
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)
	defer func() {
		if cancel != nil {
			cancel()
		}
	}()

	ticker := time.NewTicker(proxyProbePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if done != nil {
			select {
			case <-done:
				// Bridge exited on its own (e.g. broker unreachable);
				// the next probe may start a fresh one.
				cancel()
				cancel, done = nil, nil
			default:
			}
		}

		settings, known := reconciler.MQTTSettings()
		wantBridge := known && settings.Enabled && settings.ProxyToClientEnabled && settings.Address != ""
		switch {
		case wantBridge && done == nil:
			clientID := fmt.Sprintf("%s-%08x", clientIDPrefix, codec.MyNodeNum())
			broker := mqttproxy.NewPahoBroker(settings, clientID)
			bridge := mqttproxy.NewBridge(logger, messageBus, broker, session, settings.Root)

			var bridgeCtx context.Context
			bridgeCtx, cancel = context.WithCancel(ctx)
			done = make(chan struct{})
			go func(done chan struct{}) {
				defer close(done)
				if err := bridge.Run(bridgeCtx); err != nil {
					logger.Error("mqtt proxy bridge stopped", "error", err)
				}
			}(done)
			logger.Info("mqtt proxy bridge started", "address", settings.Address, "client_id", clientID)
		case !wantBridge && done != nil:
			cancel()
			cancel, done = nil, nil
			logger.Info("mqtt proxy bridge stopped, proxy mode off")
		}
	}
}

// resolvePaths places the config, database and log files in the per-user
// config directory unless an explicit config path is given.
func resolvePaths(configFlag string) (paths, error) {
	if configFlag != "" {
		dir := filepath.Dir(configFlag)

		return paths{
			ConfigFile: configFlag,
			LogFile:    filepath.Join(dir, "meshchat.log"),
		}, nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return paths{}, fmt.Errorf("user config dir: %w", err)
	}
	dir := filepath.Join(base, "meshchat")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return paths{}, fmt.Errorf("create config dir: %w", err)
	}

	return paths{
		ConfigFile: filepath.Join(dir, "config.json"),
		LogFile:    filepath.Join(dir, "meshchat.log"),
	}, nil
}
