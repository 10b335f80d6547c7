package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/ggoodman/candid-explorer-go/config"
	"github.com/ggoodman/candid-explorer-go/explorer"
	"github.com/ggoodman/candid-explorer-go/idl"
	"github.com/ggoodman/candid-explorer-go/storage"
	"github.com/ggoodman/candid-explorer-go/storage/memory"
	"github.com/ggoodman/candid-explorer-go/storage/redis"
	"github.com/ggoodman/candid-explorer-go/transport/gateway"
)

// flags are the global command line flags. Set values override the
// selected profile, which overrides the environment.
type flags struct {
	envFile    string
	profile    string
	service    string
	gateway    string
	endpoint   string
	did        string
	didJS      string
	codec      string
	privileged bool
}

// app is the per-invocation state shared by subcommands.
type app struct {
	flags flags
	cfg   *config.Config
	svc    config.Service
	svcErr error
	log    *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "candid-explorer",
		Short:         "Explore and edit a remote service through its interface description",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	pf.StringVar(&a.flags.profile, "profile", "", "service profile file (default $CANDID_PROFILES or candid.toml)")
	pf.StringVarP(&a.flags.service, "service", "s", "", "service name in the profile file")
	pf.StringVar(&a.flags.gateway, "gateway", "", "gateway URL")
	pf.StringVar(&a.flags.endpoint, "endpoint", "", "service endpoint (principal text)")
	pf.StringVar(&a.flags.did, "did", "", "path of the .did or .d.ts declaration")
	pf.StringVar(&a.flags.didJS, "did-js", "", "path of the generated JavaScript descriptor")
	pf.StringVar(&a.flags.codec, "codec", "", "gateway codec: jsonrpc or cbor")
	pf.BoolVar(&a.flags.privileged, "privileged", false, "try the bulk export procedure before individual getters")

	root.AddCommand(
		newMethodsCmd(a),
		newSchemaCmd(a),
		newLoadCmd(a),
		newCallCmd(a),
		newServeMCPCmd(a),
		newWatchCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.flags.envFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	// Logs go to stderr; stdout carries command output and the MCP stream.
	a.log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))

	path := a.flags.profile
	if path == "" {
		path = cfg.ProfilesPath
	}
	profiles, err := config.LoadProfiles(path)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	direct := f.Changed("endpoint") || f.Changed("did") || f.Changed("did-js")
	svc, err := profiles.Service(a.flags.service)
	switch {
	case err == nil:
		a.svc = svc
	case a.flags.service != "" || !direct:
		// Reported by the commands that need a service.
		a.svcErr = err
	}

	if f.Changed("endpoint") {
		a.svc.Endpoint = a.flags.endpoint
	}
	if f.Changed("gateway") {
		a.svc.Gateway = a.flags.gateway
	}
	if f.Changed("codec") {
		a.svc.Codec = a.flags.codec
	}
	if f.Changed("did") {
		a.svc.Declaration = a.flags.did
	}
	if f.Changed("did-js") {
		a.svc.Executable = a.flags.didJS
	}
	if f.Changed("privileged") {
		a.svc.Privileged = a.flags.privileged
	}
	if a.svc.Gateway == "" {
		a.svc.Gateway = cfg.GatewayURL
	}
	if a.svc.Codec == "" {
		a.svc.Codec = cfg.Codec
	}
	return nil
}

func (a *app) files() explorer.DescriptionFiles {
	return explorer.DescriptionFiles{Executable: a.svc.Executable, Declaration: a.svc.Declaration}
}

func (a *app) sources() (idl.Sources, error) {
	if a.svcErr != nil {
		return idl.Sources{}, a.svcErr
	}
	f := a.files()
	if f.Executable == "" && f.Declaration == "" {
		return idl.Sources{}, errors.New("no interface description: pass --did or --did-js, or select a profile")
	}
	return f.Read()
}

func (a *app) transport() (*gateway.Transport, error) {
	codec, err := gateway.ParseCodec(a.svc.Codec)
	if err != nil {
		return nil, err
	}
	var creds gateway.Credentials
	switch {
	case a.cfg.SigningSecret != "":
		creds = &gateway.SignedToken{Secret: []byte(a.cfg.SigningSecret), Issuer: a.cfg.TokenIssuer}
	case a.cfg.Token != "":
		creds = gateway.StaticToken(a.cfg.Token)
	}
	return gateway.New(gateway.Config{
		URL:         a.svc.Gateway,
		Codec:       codec,
		Credentials: creds,
		HTTPClient:  &http.Client{Timeout: a.cfg.Timeout},
		Logger:      a.log,
	})
}

func (a *app) storage(ctx context.Context) (storage.Storage, error) {
	if a.cfg.RedisURL != "" {
		return redis.Open(ctx, a.cfg.RedisURL, a.cfg.RedisKeyPrefix)
	}
	return memory.New(a.cfg.CacheSize)
}

// connect builds a connection from src. The returned cleanup closes the
// connection and its store.
func (a *app) connect(ctx context.Context, src idl.Sources, opts ...explorer.Option) (*explorer.Connection, func(), error) {
	if a.svcErr != nil {
		return nil, nil, a.svcErr
	}
	if a.svc.Endpoint == "" {
		return nil, nil, errors.New("no endpoint: pass --endpoint or select a profile")
	}
	tr, err := a.transport()
	if err != nil {
		return nil, nil, err
	}
	store, err := a.storage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("open snapshot store: %w", err)
	}
	opts = append([]explorer.Option{
		explorer.WithLogger(a.log),
		explorer.WithStorage(store),
		explorer.WithSnapshotTTL(a.cfg.SnapshotTTL),
		explorer.WithBulkMethod(a.cfg.BulkMethod),
	}, opts...)
	conn, err := explorer.Connect(ctx, a.svc.Endpoint, src, tr, opts...)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	cleanup := func() {
		if err := conn.Close(context.WithoutCancel(ctx)); err != nil {
			a.log.Warn("close connection", slog.Any("err", err))
		}
		store.Close()
	}
	return conn, cleanup, nil
}
