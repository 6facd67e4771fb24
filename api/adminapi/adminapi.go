// Package adminapi declares the admin gRPC service of the watchtower client.
// Messages travel as JSON through the codec registered under CodecName.
package adminapi

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	ServiceName = "wtclient.admin.TowerService"
	CodecName   = "json"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

type Tower struct {
	ID                 string `json:"id"`
	NetAddr            string `json:"net_addr"`
	AvailableSlots     uint32 `json:"available_slots"`
	SubscriptionStart  uint32 `json:"subscription_start"`
	SubscriptionExpiry uint32 `json:"subscription_expiry"`
	Status             string `json:"status"`
}

type ListTowersRequest struct{}

type ListTowersReply struct {
	Towers []*Tower `json:"towers"`
}

type GetTowerRequest struct {
	ID string `json:"id"`
}

type GetTowerReply struct {
	Tower *Tower `json:"tower"`
}

type RegisterTowerRequest struct {
	ID   string `json:"id"`
	Host string `json:"host"`
}

type RegisterTowerReply struct {
	Tower *Tower `json:"tower"`
}

type RemoveTowerRequest struct {
	ID string `json:"id"`
}

type RemoveTowerReply struct{}

type GetUserIDRequest struct{}

type GetUserIDReply struct {
	UserID string `json:"user_id"`
}

// TowerServiceServer is implemented by the admin handler. The client stub
// satisfies it too, so callers can switch between local and remote use.
type TowerServiceServer interface {
	ListTowers(context.Context, *ListTowersRequest) (*ListTowersReply, error)
	GetTower(context.Context, *GetTowerRequest) (*GetTowerReply, error)
	RegisterTower(context.Context, *RegisterTowerRequest) (*RegisterTowerReply, error)
	RemoveTower(context.Context, *RemoveTowerRequest) (*RemoveTowerReply, error)
	GetUserID(context.Context, *GetUserIDRequest) (*GetUserIDReply, error)
}

var towerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TowerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListTowers", TowerServiceServer.ListTowers),
		unary("GetTower", TowerServiceServer.GetTower),
		unary("RegisterTower", TowerServiceServer.RegisterTower),
		unary("RemoveTower", TowerServiceServer.RemoveTower),
		unary("GetUserID", TowerServiceServer.GetUserID),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "adminapi",
}

func RegisterTowerServiceServer(s grpc.ServiceRegistrar, srv TowerServiceServer) {
	s.RegisterService(&towerServiceDesc, srv)
}

func unary[Req, Reply any](method string, call func(TowerServiceServer, context.Context, *Req) (*Reply, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TowerServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(method),
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(TowerServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

type TowerServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewTowerServiceClient(cc grpc.ClientConnInterface) *TowerServiceClient {
	return &TowerServiceClient{cc: cc}
}

func (c *TowerServiceClient) ListTowers(ctx context.Context, in *ListTowersRequest) (*ListTowersReply, error) {
	out := new(ListTowersReply)
	if err := c.invoke(ctx, "ListTowers", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TowerServiceClient) GetTower(ctx context.Context, in *GetTowerRequest) (*GetTowerReply, error) {
	out := new(GetTowerReply)
	if err := c.invoke(ctx, "GetTower", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TowerServiceClient) RegisterTower(ctx context.Context, in *RegisterTowerRequest) (*RegisterTowerReply, error) {
	out := new(RegisterTowerReply)
	if err := c.invoke(ctx, "RegisterTower", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TowerServiceClient) RemoveTower(ctx context.Context, in *RemoveTowerRequest) (*RemoveTowerReply, error) {
	out := new(RemoveTowerReply)
	if err := c.invoke(ctx, "RemoveTower", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TowerServiceClient) GetUserID(ctx context.Context, in *GetUserIDRequest) (*GetUserIDReply, error) {
	out := new(GetUserIDReply)
	if err := c.invoke(ctx, "GetUserID", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TowerServiceClient) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, fullMethod(method), in, out, grpc.CallContentSubtype(CodecName))
}
