package server

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/charadev96/wtclient/api/adminapi"
	"github.com/charadev96/wtclient/internal/client"
	"github.com/charadev96/wtclient/internal/client/repository"
	"github.com/charadev96/wtclient/internal/client/towertest"
)

func startAdmin(t *testing.T) (*client.Client, *adminapi.TowerServiceClient) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	c, err := client.New(ctx, client.Options{Store: repository.NewMemoryKVStore()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ln := bufconn.Listen(1 << 20)
	srv := &Server{Client: c}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return ln.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial admin: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		cancel()
		if err := <-done; err != nil {
			t.Errorf("serve: %v", err)
		}
	})
	return c, adminapi.NewTowerServiceClient(conn)
}

func TestAdminTowerLifecycle(t *testing.T) {
	ctx := context.Background()
	c, api := startAdmin(t)
	tw := towertest.New(t)

	user, err := api.GetUserID(ctx, &adminapi.GetUserIDRequest{})
	if err != nil {
		t.Fatalf("get user id: %v", err)
	}
	if user.UserID != c.UserID.String() {
		t.Fatalf("got user %s, want %s", user.UserID, c.UserID)
	}

	reg, err := api.RegisterTower(ctx, &adminapi.RegisterTowerRequest{ID: tw.ID.String(), Host: tw.URL()})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	want := adminapi.Tower{
		ID:                 tw.ID.String(),
		NetAddr:            tw.URL(),
		AvailableSlots:     100,
		SubscriptionStart:  700_000,
		SubscriptionExpiry: 704_320,
		Status:             "reachable",
	}
	if *reg.Tower != want {
		t.Fatalf("got %+v, want %+v", *reg.Tower, want)
	}

	list, err := api.ListTowers(ctx, &adminapi.ListTowersRequest{})
	if err != nil || len(list.Towers) != 1 || *list.Towers[0] != want {
		t.Fatalf("unexpected list %+v, %v", list, err)
	}

	if _, err := api.RemoveTower(ctx, &adminapi.RemoveTowerRequest{ID: tw.ID.String()}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	_, err = api.GetTower(ctx, &adminapi.GetTowerRequest{ID: tw.ID.String()})
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestAdminErrorCodes(t *testing.T) {
	ctx := context.Background()
	_, api := startAdmin(t)
	tw := towertest.New(t)

	_, err := api.GetTower(ctx, &adminapi.GetTowerRequest{ID: "not-a-key"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}

	_, err = api.RegisterTower(ctx, &adminapi.RegisterTowerRequest{ID: tw.ID.String(), Host: "ftp://tower"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for bad host, got %v", err)
	}

	tw.Impersonate(t)
	_, err = api.RegisterTower(ctx, &adminapi.RegisterTowerRequest{ID: tw.ID.String(), Host: tw.URL()})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}

	tw.Server.Close()
	_, err = api.RegisterTower(ctx, &adminapi.RegisterTowerRequest{ID: tw.ID.String(), Host: tw.URL()})
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
}
