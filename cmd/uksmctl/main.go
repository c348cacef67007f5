package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/teawater/uksmd/pkg/ctlapi"
)

const defaultSocket = "/var/run/uksmd.sock"

func exit(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, "uksmctl: "+format+"\n", a...)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: uksmctl [options] add|del|refresh|merge|status

Commands:
  add      register --pid, optionally clipped to [--start, --end)
  del      deregister --pid and unmerge its pages
  refresh  re-sample pages of every registered process
  merge    refresh, then merge stable pages across processes
  status   print --pid's new/old/merged page counts

Options:
`)
	flag.PrintDefaults()
	os.Exit(2)
}

// parseAddr accepts decimal or 0x-prefixed hex.
func parseAddr(name, value string) uint64 {
	v, err := strconv.ParseUint(value, 0, 64)
	if err != nil {
		exit("bad --%s %q: %s", name, value, err)
	}
	return v
}

func dial(socket string) *grpc.ClientConn {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := grpc.DialContext(ctx, socket, grpc.WithInsecure(), grpc.WithBlock(),
		grpc.WithContextDialer(func(ctx context.Context, addr string) (net.Conn, error) {
			return net.Dial("unix", addr)
		}),
	)
	if err != nil {
		exit("connecting to %s: %s", socket, err)
	}
	return conn
}

func main() {
	optSocket := flag.String("socket", defaultSocket, "uksmd control socket path")
	optPid := flag.Int64("pid", 0, "target process id (add, del, status)")
	optStart := flag.String("start", "", "window start address (add; requires --end)")
	optEnd := flag.String("end", "", "window end address (add; requires --start)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
	}
	command := flag.Arg(0)

	if (*optStart == "") != (*optEnd == "") {
		exit("--start and --end must be given together")
	}

	conn := dial(*optSocket)
	defer conn.Close()
	client := ctlapi.NewControlClient(conn)
	ctx := context.Background()

	var err error
	switch command {
	case "add":
		if *optPid <= 0 {
			exit("add requires --pid")
		}
		req := &ctlapi.AddRequest{Pid: *optPid}
		if *optStart != "" {
			req.HasWindow = true
			req.WindowFrom = parseAddr("start", *optStart)
			req.WindowTo = parseAddr("end", *optEnd)
		}
		_, err = client.Add(ctx, req)
	case "del":
		if *optPid <= 0 {
			exit("del requires --pid")
		}
		_, err = client.Del(ctx, &ctlapi.DelRequest{Pid: *optPid})
	case "refresh":
		_, err = client.Refresh(ctx, &ctlapi.RefreshRequest{})
	case "merge":
		_, err = client.Merge(ctx, &ctlapi.MergeRequest{})
	case "status":
		if *optPid <= 0 {
			exit("status requires --pid")
		}
		var reply *ctlapi.StatusReply
		reply, err = client.Status(ctx, &ctlapi.StatusRequest{Pid: *optPid})
		if err == nil {
			if !reply.Known {
				exit("pid %d is not tracked", *optPid)
			}
			fmt.Printf("pid %d: new %d old %d merged %d\n", *optPid, reply.New, reply.Old, reply.Merged)
		}
	default:
		usage()
	}

	if err != nil {
		if st, ok := status.FromError(err); ok {
			exit("%s: %s", command, st.Message())
		}
		exit("%s: %s", command, err)
	}
}
