package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/manifoldco/promptui"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/charadev96/wtclient/api/adminapi"
	"github.com/charadev96/wtclient/internal/client"
	"github.com/charadev96/wtclient/internal/client/domain"
	"github.com/charadev96/wtclient/internal/client/repository"
	"github.com/charadev96/wtclient/internal/client/service"
	"github.com/charadev96/wtclient/internal/client/transport"
	"github.com/charadev96/wtclient/internal/server"
	"github.com/charadev96/wtclient/internal/server/handler/admin"
	"github.com/charadev96/wtclient/internal/shared/config"
	"github.com/charadev96/wtclient/internal/shared/log"
)

const usage = `usage: wtclient [flags] <command>

commands:
  id                         print the user id
  list                       list registered towers
  register <tower_id>@<host> register or renew with a tower
  remove <tower_id>          forget a tower
  serve                      run the admin server until interrupted

flags:
`

func main() {
	fs := flag.NewFlagSet("wtclient", flag.ExitOnError)
	configPath := fs.String("config", "wtclient.toml", "path to the config file")
	remote := fs.Bool("remote", false, "run the command through a running admin server")
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	logger := log.New("wtclient")
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := log.SetLevel(cfg.Log.Level); err != nil {
		logger.Fatal().Err(err).Msg("failed to set log level")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := &app{cfg: cfg, yes: *yes, remote: *remote}
	defer app.close()

	cmd, args := fs.Arg(0), fs.Args()[1:]
	if cmd == "serve" {
		err = app.serve(ctx)
	} else {
		err = app.connect(ctx)
		if err == nil {
			err = app.run(ctx, cmd, args)
		}
	}
	if err != nil {
		logger.Error().Err(err).Msg("command failed")
		app.close()
		os.Exit(1)
	}
}

type app struct {
	cfg     config.Config
	yes     bool
	remote  bool
	api     adminapi.TowerServiceServer
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// openClient asks on the terminal before moving a tower only when interactive
// is set; a server has nobody to ask.
func (a *app) openClient(ctx context.Context, interactive bool) (*client.Client, error) {
	backend, err := repository.Open(ctx, a.cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.closers = append(a.closers, backend.Close)

	clientLogger := log.New("client")
	transportLogger := log.New("transport")
	opts := client.Options{
		Store:         backend.Store,
		TXRunner:      backend.TXRunner,
		Transport:     transport.New(a.cfg.Transport.Timeout, &transportLogger),
		DefaultScheme: a.cfg.Transport.DefaultScheme,
		ToSelfDelay:   a.cfg.Dispatch.ToSelfDelay,
		Workers:       a.cfg.Dispatch.Workers,
		Logger:        &clientLogger,
	}
	if interactive && !a.yes {
		opts.ConfirmAddressChange = func(id domain.TowerID, oldAddr, newAddr string) bool {
			return confirm(fmt.Sprintf("Move tower %s from %s to %s", id, oldAddr, newAddr))
		}
	}
	return client.New(ctx, opts)
}

// connect picks the admin API implementation: the local store, or a remote
// admin server when it owns the store.
func (a *app) connect(ctx context.Context) error {
	if !a.remote {
		c, err := a.openClient(ctx, true)
		if err != nil {
			return err
		}
		a.api = &admin.TowerServiceHandler{Client: c}
		return nil
	}
	conn, err := grpc.NewClient(a.cfg.Admin.Address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to admin server: %w", err)
	}
	a.closers = append(a.closers, conn.Close)
	a.api = adminapi.NewTowerServiceClient(conn)
	return nil
}

func (a *app) serve(ctx context.Context) error {
	c, err := a.openClient(ctx, false)
	if err != nil {
		return err
	}
	adminLogger := log.New("admin")
	srv := &server.Server{
		Admin:  server.AdminConfig{Addr: a.cfg.Admin.Address, Logger: &adminLogger},
		Client: c,
	}
	return srv.ServeAdmin(ctx)
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "id":
		reply, err := a.api.GetUserID(ctx, &adminapi.GetUserIDRequest{})
		if err != nil {
			return err
		}
		fmt.Println(reply.UserID)
	case "list":
		reply, err := a.api.ListTowers(ctx, &adminapi.ListTowersRequest{})
		if err != nil {
			return err
		}
		printTowers(reply.Towers)
	case "register":
		if len(args) != 1 {
			return fmt.Errorf("register expects <tower_id>@<host>")
		}
		id, host, ok := strings.Cut(args[0], "@")
		if !ok || host == "" {
			return fmt.Errorf("invalid tower '%s', expected <tower_id>@<host>", args[0])
		}
		if a.remote && !a.yes {
			if err := a.confirmRemoteMove(ctx, id, host); err != nil {
				return err
			}
		}
		reply, err := a.api.RegisterTower(ctx, &adminapi.RegisterTowerRequest{ID: id, Host: host})
		if err != nil {
			return err
		}
		printTowers([]*adminapi.Tower{reply.Tower})
	case "remove":
		if len(args) != 1 {
			return fmt.Errorf("remove expects <tower_id>")
		}
		if !a.yes && !confirm(fmt.Sprintf("Remove tower %s", args[0])) {
			return errors.New("aborted")
		}
		if _, err := a.api.RemoveTower(ctx, &adminapi.RemoveTowerRequest{ID: args[0]}); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown command '%s'", cmd)
	}
	return nil
}

// confirmRemoteMove mirrors the local address-change prompt for commands sent
// to an admin server.
func (a *app) confirmRemoteMove(ctx context.Context, id, host string) error {
	current, err := a.api.GetTower(ctx, &adminapi.GetTowerRequest{ID: id})
	if status.Code(err) == codes.NotFound {
		return nil
	}
	if err != nil {
		return err
	}
	addr, err := service.NormalizeAddress(host, a.scheme())
	if err != nil || addr == current.Tower.NetAddr {
		return nil
	}
	if !confirm(fmt.Sprintf("Move tower %s from %s to %s", id, current.Tower.NetAddr, addr)) {
		return client.ErrAddressChangeDenied
	}
	return nil
}

func (a *app) scheme() string {
	if a.cfg.Transport.DefaultScheme == "" {
		return service.DefaultScheme
	}
	return a.cfg.Transport.DefaultScheme
}

func confirm(label string) bool {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	_, err := prompt.Run()
	return err == nil
}

func printTowers(towers []*adminapi.Tower) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tADDRESS\tSLOTS\tSTART\tEXPIRY\tSTATUS")
	for _, t := range towers {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			t.ID, t.NetAddr, t.AvailableSlots, t.SubscriptionStart, t.SubscriptionExpiry, t.Status)
	}
	w.Flush()
}
