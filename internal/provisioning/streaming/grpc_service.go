package streaming

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

const (
	ProgressServiceName = "unitsync.Progress"
	progressStreamName  = "Stream"
	progressStreamPath  = "/" + ProgressServiceName + "/" + progressStreamName
)

// RunLookup returns the latest progress of a run.
type RunLookup interface {
	RunProgress(runID uuid.UUID) (types.Progress, bool)
}

// ProgressServer is implemented by ProgressService.
type ProgressServer interface {
	Stream(req *structpb.Struct, stream grpc.ServerStream) error
}

// ProgressServiceDesc describes the progress stream. Requests and updates
// are google.protobuf.Struct messages:
//
//	request: {"run_id": "<uuid>"}
//	update:  {"run_id", "state", "percent", "operation", "timestamp", "summary"}
var ProgressServiceDesc = grpc.ServiceDesc{
	ServiceName: ProgressServiceName,
	HandlerType: (*ProgressServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    progressStreamName,
			Handler:       progressStreamHandler,
			ServerStreams: true,
		},
	},
	Metadata: "unitsync/progress.proto",
}

func progressStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(ProgressServer).Stream(req, stream)
}

type ProgressService struct {
	streamer *ProgressStreamer
	runs     RunLookup
}

func NewProgressService(streamer *ProgressStreamer, runs RunLookup) *ProgressService {
	return &ProgressService{
		streamer: streamer,
		runs:     runs,
	}
}

// Register adds the service to a gRPC server.
func (s *ProgressService) Register(server *grpc.Server) {
	server.RegisterService(&ProgressServiceDesc, s)
}

func (s *ProgressService) Stream(req *structpb.Struct, stream grpc.ServerStream) error {
	runID, err := uuid.Parse(req.GetFields()["run_id"].GetStringValue())
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid run_id: %v", err)
	}

	eventCh := s.streamer.Subscribe(runID)
	defer s.streamer.Unsubscribe(runID, eventCh)

	current, ok := s.runs.RunProgress(runID)
	if !ok {
		return status.Errorf(codes.NotFound, "run %s not found", runID)
	}
	if err := sendProgress(stream, current); err != nil {
		return err
	}
	if current.State == types.RunReported {
		return nil
	}

	for {
		select {
		case p, ok := <-eventCh:
			if !ok {
				return nil
			}
			if err := sendProgress(stream, p); err != nil {
				return err
			}
			if p.State == types.RunReported {
				return nil
			}

		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
}

func sendProgress(stream grpc.ServerStream, p types.Progress) error {
	msg, err := ProgressToStruct(p)
	if err != nil {
		return status.Errorf(codes.Internal, "encode progress: %v", err)
	}
	return stream.SendMsg(msg)
}

func ProgressToStruct(p types.Progress) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"run_id":    p.RunID.String(),
		"state":     p.State.String(),
		"percent":   p.Percent,
		"operation": p.Operation,
		"timestamp": p.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if p.Summary != nil {
		fields["summary"] = map[string]interface{}{
			"succeeded": p.Summary.Succeeded,
			"failed":    p.Summary.Failed,
		}
	}
	return structpb.NewStruct(fields)
}

func ProgressFromStruct(msg *structpb.Struct) (types.Progress, error) {
	f := msg.GetFields()

	runID, err := uuid.Parse(f["run_id"].GetStringValue())
	if err != nil {
		return types.Progress{}, fmt.Errorf("invalid run_id: %w", err)
	}

	p := types.Progress{
		RunID:     runID,
		State:     parseRunState(f["state"].GetStringValue()),
		Percent:   int(f["percent"].GetNumberValue()),
		Operation: f["operation"].GetStringValue(),
	}
	if ts, err := time.Parse(time.RFC3339Nano, f["timestamp"].GetStringValue()); err == nil {
		p.Timestamp = ts
	}
	if sum := f["summary"].GetStructValue(); sum != nil {
		p.Summary = &types.ReportSummary{
			Succeeded: int(sum.GetFields()["succeeded"].GetNumberValue()),
			Failed:    int(sum.GetFields()["failed"].GetNumberValue()),
		}
	}
	return p, nil
}

func parseRunState(s string) types.RunState {
	for _, st := range []types.RunState{types.RunIdle, types.RunPlanning, types.RunExecuting, types.RunReported} {
		if st.String() == s {
			return st
		}
	}
	return types.RunIdle
}

// WatchProgress streams the progress of a run from a remote server and
// calls fn for every update until the run is reported.
func WatchProgress(ctx context.Context, conn grpc.ClientConnInterface, runID uuid.UUID, fn func(types.Progress)) error {
	stream, err := conn.NewStream(ctx, &ProgressServiceDesc.Streams[0], progressStreamPath)
	if err != nil {
		return fmt.Errorf("open progress stream: %w", err)
	}

	req, err := structpb.NewStruct(map[string]interface{}{"run_id": runID.String()})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(req); err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		p, err := ProgressFromStruct(msg)
		if err != nil {
			return err
		}
		fn(p)
	}
}
