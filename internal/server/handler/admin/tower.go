package admin

import (
	"context"
	"errors"
	"sort"

	"github.com/jinzhu/copier"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/charadev96/wtclient/api/adminapi"
	"github.com/charadev96/wtclient/internal/client"
	"github.com/charadev96/wtclient/internal/client/domain"
	"github.com/charadev96/wtclient/internal/client/service"
)

type TowerServiceHandler struct {
	Client *client.Client
}

func (h *TowerServiceHandler) ListTowers(ctx context.Context, req *adminapi.ListTowersRequest) (*adminapi.ListTowersReply, error) {
	list, err := h.Client.ListTowers(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	towers := make([]*adminapi.Tower, 0, len(list))
	for id, rec := range list {
		towers = append(towers, toTower(id, rec))
	}
	sort.Slice(towers, func(i, j int) bool {
		return towers[i].ID < towers[j].ID
	})
	return &adminapi.ListTowersReply{Towers: towers}, nil
}

func (h *TowerServiceHandler) GetTower(ctx context.Context, req *adminapi.GetTowerRequest) (*adminapi.GetTowerReply, error) {
	id, err := domain.ParseTowerID(req.ID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	rec, err := h.Client.GetTower(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return &adminapi.GetTowerReply{Tower: toTower(id, rec)}, nil
}

func (h *TowerServiceHandler) RegisterTower(ctx context.Context, req *adminapi.RegisterTowerRequest) (*adminapi.RegisterTowerReply, error) {
	id, err := domain.ParseTowerID(req.ID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	rec, err := h.Client.RegisterTower(ctx, id, req.Host)
	if err != nil {
		return nil, toStatus(err)
	}
	return &adminapi.RegisterTowerReply{Tower: toTower(id, rec)}, nil
}

func (h *TowerServiceHandler) RemoveTower(ctx context.Context, req *adminapi.RemoveTowerRequest) (*adminapi.RemoveTowerReply, error) {
	id, err := domain.ParseTowerID(req.ID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := h.Client.RemoveTower(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	return &adminapi.RemoveTowerReply{}, nil
}

func (h *TowerServiceHandler) GetUserID(ctx context.Context, req *adminapi.GetUserIDRequest) (*adminapi.GetUserIDReply, error) {
	return &adminapi.GetUserIDReply{UserID: h.Client.UserID.String()}, nil
}

func toTower(id domain.TowerID, rec domain.TowerRecord) *adminapi.Tower {
	t := new(adminapi.Tower)
	copier.Copy(t, &rec)
	t.ID = id.String()
	t.Status = rec.Status.String()
	return t
}

func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, domain.ErrTowerNotFound):
		code = codes.NotFound
	case errors.Is(err, service.ErrInvalidAddress):
		code = codes.InvalidArgument
	case domain.IsConnectionError(err):
		code = codes.Unavailable
	case errors.Is(err, domain.ErrSubscriptionExpiry),
		errors.Is(err, domain.ErrSubscriptionSlot),
		errors.Is(err, domain.ErrInvalidReceipt),
		errors.Is(err, domain.ErrRequest),
		errors.Is(err, client.ErrAddressChangeDenied):
		code = codes.FailedPrecondition
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}
