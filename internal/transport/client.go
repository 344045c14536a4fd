package transport

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	pb "github.com/bpgergo/kmirror/api/proto/v1"
)

// Dial opens an insecure control-plane connection to localhost:port, for
// the CLI and for tests exercising the control plane end to end.
func Dial(port int) (pb.ControlClient, error) {
	cc, err := grpc.NewClient(fmt.Sprintf("localhost:%d", port), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return pb.NewControlClient(cc), nil
}
