// Package facade is the control-plane grpc server: a thin translator
// that turns Add/Del/Refresh/Merge/Status calls into scheduler commands
// and returns once the scheduler has accepted or rejected them. It does
// not wait for the background work those commands enqueue.
package facade

import (
	"context"
	"net"
	"os"
	"path/filepath"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/teawater/uksmd/pkg/ctlapi"
	"github.com/teawater/uksmd/pkg/log"
	"github.com/teawater/uksmd/pkg/uksm"
	"github.com/teawater/uksmd/pkg/uksmerr"
)

var facadeLog = log.Get("facade")

// Server is the control-plane grpc server lifecycle.
type Server struct {
	sched  *uksm.Scheduler
	server *grpc.Server
}

// NewServer builds a Server driving sched.
func NewServer(sched *uksm.Scheduler) *Server {
	return &Server{sched: sched}
}

// Start listens on socket (a unix domain socket path), chmods it to
// owner-only, and serves until Stop is called.
func (s *Server) Start(socket string) error {
	if err := os.MkdirAll(filepath.Dir(socket), 0700); err != nil {
		return uksmerr.Wrap(uksmerr.KernelIoError, err, "creating directory for socket %s", socket)
	}
	if err := os.Remove(socket); err != nil && !os.IsNotExist(err) {
		return uksmerr.Wrap(uksmerr.KernelIoError, err, "unlinking stale socket %s", socket)
	}

	lis, err := net.Listen("unix", socket)
	if err != nil {
		return uksmerr.Wrap(uksmerr.KernelIoError, err, "listening on %s", socket)
	}
	if err := os.Chmod(socket, 0600); err != nil {
		lis.Close()
		return uksmerr.Wrap(uksmerr.KernelIoError, err, "chmod %s", socket)
	}

	s.server = grpc.NewServer()
	ctlapi.RegisterControlServer(s.server, &handler{sched: s.sched})

	facadeLog.Info("starting control-plane server at %s", socket)
	go func() {
		defer lis.Close()
		if err := s.server.Serve(lis); err != nil {
			facadeLog.Error("control-plane server exited: %v", err)
		}
	}()
	return nil
}

// Stop stops accepting new control commands. It does not wait for the
// scheduler's in-flight worker; callers that need that should poll
// sched.Idle() before process exit, per the cooperative shutdown model.
func (s *Server) Stop() {
	if s.server != nil {
		s.server.GracefulStop()
	}
}

// handler implements ctlapi.ControlServer.
type handler struct {
	sched *uksm.Scheduler
}

func (h *handler) Add(ctx context.Context, req *ctlapi.AddRequest) (*ctlapi.AddReply, error) {
	var win *uksm.Window
	if req.HasWindow {
		win = &uksm.Window{Start: req.WindowFrom, End: req.WindowTo}
	}
	if err := h.sched.Add(int(req.Pid), win); err != nil {
		return nil, toStatus(err)
	}
	return &ctlapi.AddReply{}, nil
}

func (h *handler) Del(ctx context.Context, req *ctlapi.DelRequest) (*ctlapi.DelReply, error) {
	if err := h.sched.Del(int(req.Pid)); err != nil {
		return nil, toStatus(err)
	}
	return &ctlapi.DelReply{}, nil
}

func (h *handler) Refresh(ctx context.Context, req *ctlapi.RefreshRequest) (*ctlapi.RefreshReply, error) {
	h.sched.RefreshAll()
	return &ctlapi.RefreshReply{}, nil
}

func (h *handler) Merge(ctx context.Context, req *ctlapi.MergeRequest) (*ctlapi.MergeReply, error) {
	h.sched.MergeAll()
	return &ctlapi.MergeReply{}, nil
}

func (h *handler) Status(ctx context.Context, req *ctlapi.StatusRequest) (*ctlapi.StatusReply, error) {
	n, o, m, ok := h.sched.TrackerStatus(int(req.Pid))
	if !ok {
		return &ctlapi.StatusReply{Known: false}, nil
	}
	return &ctlapi.StatusReply{Known: true, New: int64(n), Old: int64(o), Merged: int64(m)}, nil
}

// toStatus maps a uksmerr.Kind to a grpc status: precondition failures
// are INVALID_ARGUMENT, everything else from the control path is
// INTERNAL.
func toStatus(err error) error {
	switch uksmerr.KindOf(err) {
	case uksmerr.PreconditionFailed:
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
