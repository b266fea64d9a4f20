package tracking

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

// Transport specifies how a browser-side forwarder reaches the runner.
type Transport string

const (
	// TransportUDS uses a Unix domain socket (forwarder on the same host).
	TransportUDS Transport = "uds"

	// TransportGRPC uses gRPC over HTTP/2 (remote forwarder).
	TransportGRPC Transport = "grpc"
)

// RunnerConfig contains configuration for the capture runner.
type RunnerConfig struct {
	Name        string
	Transport   Transport
	SocketPath  string
	GRPCAddress string
	JSONLogs    bool
	LogLevel    string
}

// DefaultRunnerConfig returns the default runner configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Name:        "tracking-capture",
		Transport:   TransportUDS,
		SocketPath:  "/tmp/tracking-capture.sock",
		GRPCAddress: "localhost:50051",
		JSONLogs:    false,
		LogLevel:    "info",
	}
}

// CaptureRunner serves the intake protocol, feeding forwarded browser
// requests into a session's capture pipeline.
type CaptureRunner struct {
	session  *Session
	config   RunnerConfig
	listener net.Listener
	shutdown chan struct{}
}

// NewCaptureRunner creates a runner feeding the given session.
func NewCaptureRunner(session *Session) *CaptureRunner {
	return &CaptureRunner{
		session:  session,
		config:   DefaultRunnerConfig(),
		shutdown: make(chan struct{}),
	}
}

// WithName sets the runner name for logging.
func (r *CaptureRunner) WithName(name string) *CaptureRunner {
	r.config.Name = name
	return r
}

// WithSocket configures UDS transport with the given socket path.
func (r *CaptureRunner) WithSocket(path string) *CaptureRunner {
	r.config.Transport = TransportUDS
	r.config.SocketPath = path
	return r
}

// WithGRPC configures gRPC transport with the given address.
func (r *CaptureRunner) WithGRPC(address string) *CaptureRunner {
	r.config.Transport = TransportGRPC
	r.config.GRPCAddress = address
	return r
}

// WithJSONLogs enables JSON log format.
func (r *CaptureRunner) WithJSONLogs() *CaptureRunner {
	r.config.JSONLogs = true
	return r
}

// WithLogLevel sets the log level.
func (r *CaptureRunner) WithLogLevel(level string) *CaptureRunner {
	r.config.LogLevel = level
	return r
}

// WithConfig sets the full runner configuration.
func (r *CaptureRunner) WithConfig(config RunnerConfig) *CaptureRunner {
	r.config = config
	return r
}

func (r *CaptureRunner) setupLogging() {
	level, err := zerolog.ParseLevel(r.config.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if r.config.JSONLogs {
		log.Logger = zerolog.New(os.Stdout).With().
			Timestamp().
			Str("runner", r.config.Name).
			Logger()
	} else {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().
			Timestamp().
			Str("runner", r.config.Name).
			Logger()
	}
}

// HandleEnvelope processes one intake message and builds its ack.
func (r *CaptureRunner) HandleEnvelope(envelope *Envelope) *Ack {
	switch envelope.Type {
	case MessageTypePing:
		return &Ack{OK: true}

	case MessageTypeClear:
		r.session.Clear()
		return &Ack{OK: true}

	case MessageTypePageOpened:
		var event PageOpenedEvent
		if err := envelope.ParsePayload(&event); err != nil {
			log.Error().Err(err).Msg("Failed to parse page_opened event")
			return &Ack{Error: err.Error()}
		}
		subscribed := r.session.TrackPage(event.PageID)
		return &Ack{OK: true, Subscribed: subscribed}

	case MessageTypeRequestObserved:
		var event RequestObservedEvent
		if err := envelope.ParsePayload(&event); err != nil {
			log.Error().Err(err).Msg("Failed to parse request_observed event")
			return &Ack{Error: err.Error()}
		}
		body, err := event.DecodedBody()
		if err != nil {
			log.Error().Err(err).Str("url", event.URL).Msg("Failed to decode request body")
			return &Ack{Error: err.Error()}
		}
		request := NewObservedRequest(event.URL, event.Method, string(body))
		recorded, kind := r.session.HandleRequest(event.PageID, request)
		ack := &Ack{OK: true, Recorded: recorded}
		if recorded {
			ack.Kind = kind
		}
		return ack

	default:
		log.Warn().Str("type", string(envelope.Type)).Msg("Unknown message type")
		return &Ack{Error: fmt.Sprintf("unknown message type %q", envelope.Type)}
	}
}

func (r *CaptureRunner) handleConnection(conn net.Conn) {
	defer conn.Close()

	for {
		select {
		case <-r.shutdown:
			return
		default:
		}

		envelope, err := ReadMessage(conn)
		if err != nil {
			if err != io.EOF {
				log.Error().Err(err).Msg("Failed to read message")
			}
			return
		}
		if envelope == nil {
			return
		}

		ack := r.HandleEnvelope(envelope)
		if err := WriteMessage(conn, ack); err != nil {
			log.Error().Err(err).Msg("Failed to write ack")
			return
		}
	}
}

// Run starts the intake server and blocks until shutdown.
func (r *CaptureRunner) Run() error {
	r.setupLogging()

	log.Info().
		Str("transport", string(r.config.Transport)).
		Str("session", r.session.ID()).
		Msg("Starting capture intake")

	switch r.config.Transport {
	case TransportUDS:
		return r.runUDS()
	case TransportGRPC:
		return r.runGRPC()
	default:
		return fmt.Errorf("unsupported transport: %s", r.config.Transport)
	}
}

func (r *CaptureRunner) runUDS() error {
	// Clean up existing socket
	if _, err := os.Stat(r.config.SocketPath); err == nil {
		if err := os.Remove(r.config.SocketPath); err != nil {
			return fmt.Errorf("failed to remove existing socket: %w", err)
		}
	}

	listener, err := net.Listen("unix", r.config.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	r.listener = listener

	if err := os.Chmod(r.config.SocketPath, 0660); err != nil {
		log.Warn().Err(err).Msg("Failed to set socket permissions")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received")
		close(r.shutdown)
		r.listener.Close()
	}()

	log.Info().Str("socket", r.config.SocketPath).Msg("Capture intake listening (UDS)")

	for {
		conn, err := r.listener.Accept()
		if err != nil {
			select {
			case <-r.shutdown:
			default:
				log.Error().Err(err).Msg("Failed to accept connection")
				continue
			}
			break
		}
		go r.handleConnection(conn)
	}

	os.Remove(r.config.SocketPath)
	log.Info().Msg("Capture intake shutdown complete")
	return nil
}

// ParseArgs parses command line arguments and returns a RunnerConfig.
func ParseArgs() RunnerConfig {
	config := DefaultRunnerConfig()

	transport := string(config.Transport)
	pflag.StringVar(&transport, "transport", transport, "Intake transport (uds, grpc)")
	pflag.StringVar(&config.SocketPath, "socket", config.SocketPath, "Unix socket path")
	pflag.StringVar(&config.GRPCAddress, "grpc-address", config.GRPCAddress, "gRPC listen address")
	pflag.BoolVar(&config.JSONLogs, "json-logs", config.JSONLogs, "Enable JSON log format")
	pflag.StringVar(&config.LogLevel, "log-level", config.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Parse()

	config.Transport = Transport(transport)
	return config
}

// RunCapture is a convenience function to serve a session's intake from
// main, with configuration taken from command line arguments.
func RunCapture(session *Session) {
	config := ParseArgs()
	runner := NewCaptureRunner(session).WithConfig(config)

	if err := runner.Run(); err != nil {
		log.Fatal().Err(err).Msg("Capture intake failed")
	}
}
