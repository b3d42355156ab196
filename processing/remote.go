package processing

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/juju/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	workerService   = "sdi.ProcessWorker"
	describeMethod  = "/" + workerService + "/Describe"
	executeMethod   = "/" + workerService + "/Execute"
	DefaultWorkerTO = 10 * time.Second
)

// WorkerServer is the gRPC process worker service. Messages are plain
// google.protobuf.Struct values.
type WorkerServer interface {
	Describe(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Execute(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type describeReply struct {
	Authorities map[string][]Descriptor `json:"authorities"`
}

type executeRequest struct {
	Authority string                 `json:"authority"`
	Code      string                 `json:"code"`
	Inputs    map[string]interface{} `json:"inputs"`
}

type executeReply struct {
	Outputs map[string]interface{} `json:"outputs"`
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errors.Trace(err)
	}
	s, err := structpb.NewStruct(m)
	return s, errors.Trace(err)
}

func fromStruct(s *structpb.Struct, v interface{}) error {
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(json.Unmarshal(b, v))
}

type server struct {
	registry *Registry
	pool     *ProcessPool
}

func (s *server) Describe(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	reply := describeReply{Authorities: make(map[string][]Descriptor)}
	for _, f := range s.registry.Factories() {
		descs, err := f.Descriptors(ctx)
		if err != nil {
			return nil, toStatus(err)
		}
		reply.Authorities[f.Authority()] = descs
	}
	out, err := toStruct(&reply)
	if err != nil {
		return nil, toStatus(err)
	}
	return out, nil
}

func (s *server) Execute(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req executeRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}

	task := NewTask(ctx, req.Authority, req.Code, req.Inputs)
	s.pool.AddQueue(task)

	select {
	case outputs := <-task.Resp:
		out, err := toStruct(&executeReply{Outputs: outputs})
		if err != nil {
			return nil, toStatus(err)
		}
		return out, nil
	case err := <-task.Error:
		return nil, toStatus(err)
	case <-ctx.Done():
		return nil, toStatus(ctx.Err())
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, errors.NotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, errors.NotValid):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errors.QuotaLimitExceeded):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func fromStatus(err error, address string) error {
	st, ok := status.FromError(err)
	if !ok {
		return errors.Annotatef(err, "process worker %s", address)
	}
	switch st.Code() {
	case codes.NotFound:
		return errors.NewNotFound(nil, st.Message())
	case codes.InvalidArgument:
		return errors.NewNotValid(nil, st.Message())
	case codes.ResourceExhausted:
		return errors.NewQuotaLimitExceeded(nil, st.Message())
	case codes.Canceled:
		return context.Canceled
	}
	return errors.Errorf("process worker %s: %s", address, st.Message())
}

func describeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServer).Describe(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: describeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WorkerServer).Describe(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func executeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: executeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WorkerServer).Execute(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var workerServiceDesc = grpc.ServiceDesc{
	ServiceName: workerService,
	HandlerType: (*WorkerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Describe", Handler: describeHandler},
		{MethodName: "Execute", Handler: executeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sdi/process_worker.proto",
}

// RegisterWorkerServer serves the processes of reg on s, executing them
// through pool.
func RegisterWorkerServer(s *grpc.Server, reg *Registry, pool *ProcessPool) {
	s.RegisterService(&workerServiceDesc, &server{registry: reg, pool: pool})
}

// RemoteWorker is a client of a process worker.
type RemoteWorker struct {
	Address string
	conn    *grpc.ClientConn
}

func DialWorker(address string, opts ...grpc.DialOption) (*RemoteWorker, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.Dial(address, opts...)
	if err != nil {
		return nil, errors.Annotatef(err, "dialing process worker %s", address)
	}
	return &RemoteWorker{Address: address, conn: conn}, nil
}

func (w *RemoteWorker) Close() error {
	return w.conn.Close()
}

// Describe lists the descriptors of every authority the worker serves.
func (w *RemoteWorker) Describe(ctx context.Context) (map[string][]Descriptor, error) {
	in, _ := structpb.NewStruct(map[string]interface{}{})
	out := new(structpb.Struct)
	if err := w.conn.Invoke(ctx, describeMethod, in, out); err != nil {
		return nil, fromStatus(err, w.Address)
	}
	var reply describeReply
	if err := fromStruct(out, &reply); err != nil {
		return nil, errors.Annotatef(err, "decoding description from %s", w.Address)
	}
	return reply.Authorities, nil
}

func (w *RemoteWorker) Execute(ctx context.Context, authority, code string, inputs map[string]interface{}) (map[string]interface{}, error) {
	in, err := toStruct(&executeRequest{Authority: authority, Code: code, Inputs: inputs})
	if err != nil {
		return nil, errors.NewNotValid(err, "process inputs")
	}
	out := new(structpb.Struct)
	if err := w.conn.Invoke(ctx, executeMethod, in, out); err != nil {
		return nil, fromStatus(err, w.Address)
	}
	var reply executeReply
	if err := fromStruct(out, &reply); err != nil {
		return nil, errors.Annotatef(err, "decoding outputs from %s", w.Address)
	}
	return reply.Outputs, nil
}

// Factories returns one factory per authority served by the worker.
func (w *RemoteWorker) Factories(ctx context.Context) ([]*RemoteFactory, error) {
	authorities, err := w.Describe(ctx)
	if err != nil {
		return nil, err
	}
	var out []*RemoteFactory
	for name := range authorities {
		out = append(out, &RemoteFactory{authority: name, worker: w})
	}
	return out, nil
}

// RemoteFactory exposes one authority of a remote worker. Its
// descriptors are fetched again on every listing.
type RemoteFactory struct {
	authority string
	worker    *RemoteWorker
}

func (f *RemoteFactory) Authority() string { return f.authority }

func (f *RemoteFactory) Descriptors(ctx context.Context) ([]Descriptor, error) {
	authorities, err := f.worker.Describe(ctx)
	if err != nil {
		return nil, err
	}
	descs, ok := authorities[f.authority]
	if !ok {
		return nil, errors.NotFoundf("process authority %q on %s", f.authority, f.worker.Address)
	}
	return descs, nil
}

func (f *RemoteFactory) Process(ctx context.Context, code string) (Process, error) {
	descs, err := f.Descriptors(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range descs {
		if d.Code == code {
			return &remoteProcess{desc: d, factory: f}, nil
		}
	}
	return nil, errors.NotFoundf("process %s:%s", f.authority, code)
}

type remoteProcess struct {
	desc    Descriptor
	factory *RemoteFactory
}

func (p *remoteProcess) Descriptor() Descriptor { return p.desc }

func (p *remoteProcess) Execute(ctx context.Context, inputs map[string]interface{}, mon Monitor) (map[string]interface{}, error) {
	if err := mon.Checkpoint(ctx); err != nil {
		return nil, err
	}
	mon.Progress(math.NaN(), "running on "+p.factory.worker.Address)
	out, err := p.factory.worker.Execute(ctx, p.factory.authority, p.desc.Code, inputs)
	if err != nil {
		return nil, err
	}
	mon.Progress(100, "")
	return out, nil
}

// RegisterRemoteWorkers dials every address and registers the
// authorities it serves. Unreachable workers and clashing authorities
// are logged and skipped.
func RegisterRemoteWorkers(ctx context.Context, reg *Registry, addresses []string, opts ...grpc.DialOption) []*RemoteWorker {
	var workers []*RemoteWorker
	for _, addr := range addresses {
		w, err := DialWorker(addr, opts...)
		if err != nil {
			logger.Errorf("%v", err)
			continue
		}
		dctx, cancel := context.WithTimeout(ctx, DefaultWorkerTO)
		factories, err := w.Factories(dctx)
		cancel()
		if err != nil {
			logger.Errorf("process worker %s: %v", addr, err)
			w.Close()
			continue
		}
		for _, f := range factories {
			if err := reg.Register(f); err != nil {
				logger.Warningf("process worker %s: %v", addr, err)
			}
		}
		workers = append(workers, w)
	}
	return workers
}
