package exchange

import (
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

/*
The exchange service streams the output of a registered task to a remote
reader. Fetch takes the task id as a StringValue and answers with one
BytesValue per batch, each holding an arrow IPC stream (see EncodeBatch). The
messages are well known protobuf wrappers so the service needs no generated
code.
*/

const (
	serviceName = "harness.exchange.Exchange"
	fetchMethod = "/" + serviceName + "/Fetch"
)

type exchangeService interface {
	fetch(req *wrapperspb.StringValue, stream grpc.ServerStream) error
}

func fetchHandler(srv any, stream grpc.ServerStream) error {
	req := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(exchangeService).fetch(req, stream)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*exchangeService)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Fetch",
			Handler:       fetchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "exchange",
}
