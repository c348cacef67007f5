// Package ctlapi defines the control-plane wire messages and grpc service
// descriptor for uksmd. The messages are plain Go structs carried over
// grpc rather than protoc-generated stubs; see codec.go for how that is
// wired without a protobuf build step.
package ctlapi

// AddRequest registers a process, optionally clipped to a window.
type AddRequest struct {
	Pid        int64
	HasWindow  bool
	WindowFrom uint64
	WindowTo   uint64
}

// AddReply is empty on success.
type AddReply struct{}

// DelRequest deregisters a process.
type DelRequest struct {
	Pid int64
}

// DelReply is empty on success.
type DelReply struct{}

// RefreshRequest triggers RefreshAll. It carries no fields.
type RefreshRequest struct{}

// RefreshReply is empty on success.
type RefreshReply struct{}

// MergeRequest triggers MergeAll. It carries no fields.
type MergeRequest struct{}

// MergeReply is empty on success.
type MergeReply struct{}

// StatusRequest asks for one process's tracker bucket sizes.
type StatusRequest struct {
	Pid int64
}

// StatusReply reports the three lifecycle bucket sizes, or Known=false if
// the pid has no tracker.
type StatusReply struct {
	Known  bool
	New    int64
	Old    int64
	Merged int64
}
