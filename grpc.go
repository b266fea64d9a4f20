package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcencoding "google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

// captureGRPCService implements the CaptureService gRPC service using JSON
// marshaling. A manual grpc.ServiceDesc with a JSON codec lets the service
// work without protoc-generated code.
type captureGRPCService struct {
	runner   *CaptureRunner
	streamID atomic.Uint64
}

// jsonMessage is a raw JSON container used as the gRPC message type.
type jsonMessage struct {
	Data json.RawMessage
}

// jsonCodec implements grpc encoding.Codec so the server marshals messages
// as JSON instead of protobuf.
type jsonCodec struct{}

var _ grpcencoding.Codec = jsonCodec{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	msg, ok := v.(*jsonMessage)
	if !ok {
		return json.Marshal(v)
	}
	if msg.Data == nil {
		return []byte("{}"), nil
	}
	return []byte(msg.Data), nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	msg, ok := v.(*jsonMessage)
	if !ok {
		return json.Unmarshal(data, v)
	}
	msg.Data = make(json.RawMessage, len(data))
	copy(msg.Data, data)
	return nil
}

func (jsonCodec) Name() string {
	return "json"
}

// captureServiceDesc is the manually-constructed grpc.ServiceDesc for the
// capture intake. It matches the proto service definition:
//
//	service CaptureService {
//	  rpc Observe(Envelope) returns (Ack);
//	  rpc ObserveStream(stream Envelope) returns (stream Ack);
//	}
var captureServiceDesc = grpc.ServiceDesc{
	ServiceName: "tracking.capture.v1.CaptureService",
	HandlerType: (*captureGRPCService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Observe",
			Handler:    observeHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "ObserveStream",
			Handler:       observeStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "capture_v1.proto",
}

// registerCaptureService registers the CaptureService on the given server.
func registerCaptureService(s *grpc.Server, runner *CaptureRunner) {
	s.RegisterService(&captureServiceDesc, &captureGRPCService{runner: runner})
}

// observeHandler handles the unary Observe RPC.
func observeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	svc := srv.(*captureGRPCService)

	in := &jsonMessage{}
	if err := dec(in); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "failed to decode request: %v", err)
	}

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return svc.observe(req.(*jsonMessage))
	}

	if interceptor == nil {
		return handler(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/tracking.capture.v1.CaptureService/Observe",
	}
	return interceptor(ctx, in, info, handler)
}

func (s *captureGRPCService) observe(in *jsonMessage) (*jsonMessage, error) {
	var envelope Envelope
	if err := json.Unmarshal(in.Data, &envelope); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "failed to parse envelope: %v", err)
	}

	ack := s.runner.HandleEnvelope(&envelope)
	data, err := json.Marshal(ack)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to marshal ack: %v", err)
	}
	return &jsonMessage{Data: data}, nil
}

// observeStreamHandler handles the bidirectional ObserveStream RPC.
func observeStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	svc := srv.(*captureGRPCService)
	return svc.observeStream(stream)
}

func (s *captureGRPCService) observeStream(stream grpc.ServerStream) error {
	id := s.streamID.Add(1)
	streamID := fmt.Sprintf("grpc-stream-%d", id)
	ctx := stream.Context()

	log.Debug().Str("stream_id", streamID).Msg("gRPC ObserveStream started")
	defer log.Debug().Str("stream_id", streamID).Msg("gRPC ObserveStream ended")

	for {
		select {
		case <-s.runner.shutdown:
			return status.Error(codes.Unavailable, "server shutting down")
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		in := &jsonMessage{}
		if err := stream.RecvMsg(in); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		var envelope Envelope
		if err := json.Unmarshal(in.Data, &envelope); err != nil {
			log.Error().Err(err).Str("stream_id", streamID).Msg("Failed to parse envelope")
			continue
		}

		ack := s.runner.HandleEnvelope(&envelope)
		data, err := json.Marshal(ack)
		if err != nil {
			log.Error().Err(err).Str("stream_id", streamID).Msg("Failed to marshal ack")
			continue
		}

		if err := stream.SendMsg(&jsonMessage{Data: data}); err != nil {
			log.Error().Err(err).Str("stream_id", streamID).Msg("Failed to send ack")
			return err
		}
	}
}

func (r *CaptureRunner) runGRPC() error {
	listener, err := net.Listen("tcp", r.config.GRPCAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", r.config.GRPCAddress, err)
	}

	server := grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	registerCaptureService(server, r)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received")
		close(r.shutdown)
		server.GracefulStop()
	}()

	log.Info().Str("address", r.config.GRPCAddress).Msg("Capture intake listening (gRPC)")

	if err := server.Serve(listener); err != nil {
		return fmt.Errorf("gRPC server failed: %w", err)
	}

	log.Info().Msg("Capture intake shutdown complete")
	return nil
}
