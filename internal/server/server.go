package server

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/charadev96/wtclient/api/adminapi"
	"github.com/charadev96/wtclient/internal/client"
	"github.com/charadev96/wtclient/internal/server/handler/admin"
	"github.com/charadev96/wtclient/internal/shared/log"
)

type AdminConfig struct {
	Addr   string
	Logger *zerolog.Logger
}

type Server struct {
	Admin  AdminConfig
	Client *client.Client
}

func (s *Server) ServeAdmin(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Admin.Addr)
	if err != nil {
		return fmt.Errorf("failed to init server: %w", err)
	}
	log.OrNop(s.Admin.Logger).Info().
		Str("address", ln.Addr().String()).
		Msg("started server")
	return s.Serve(ctx, ln)
}

// Serve runs the admin service on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	logger := log.OrNop(s.Admin.Logger)

	inst := grpc.NewServer(grpc.UnaryInterceptor(s.logCalls))
	adminapi.RegisterTowerServiceServer(inst, &admin.TowerServiceHandler{
		Client: s.Client,
	})

	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		inst.GracefulStop()
	}()

	return inst.Serve(ln)
}

func (s *Server) logCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	reply, err := handler(ctx, req)
	logger := log.OrNop(s.Admin.Logger)
	if err != nil {
		logger.Warn().
			Str("method", info.FullMethod).
			Err(err).
			Msg("admin call failed")
	} else {
		logger.Debug().
			Str("method", info.FullMethod).
			Msg("admin call")
	}
	return reply, err
}
