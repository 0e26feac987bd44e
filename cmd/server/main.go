package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/claimed-identity-cri/audit"
	"github.com/jrsteele09/claimed-identity-cri/clients"
	"github.com/jrsteele09/claimed-identity-cri/cri"
	"github.com/jrsteele09/claimed-identity-cri/internal/config"
	"github.com/jrsteele09/claimed-identity-cri/jose"
	"github.com/jrsteele09/claimed-identity-cri/server"
	"github.com/jrsteele09/claimed-identity-cri/storage/memorystore"
	"github.com/jrsteele09/claimed-identity-cri/storage/redisstore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// awsMaxAttempts bounds KMS and SQS calls, retries included
const awsMaxAttempts = 2

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	if err := config.Validate(c); err != nil {
		return err
	}

	ctx := context.Background()
	handler, closeStore, err := buildHandler(ctx, c)
	if err != nil {
		return err
	}
	defer closeStore()

	srv := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- listenAndServe(srv)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(srv)
}

func buildHandler(ctx context.Context, c config.Config) (http.Handler, func(), error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(c.GetRegion()),
		awsconfig.WithRetryMaxAttempts(awsMaxAttempts),
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load AWS configuration")
	}

	var adapterOptions []jose.AdapterOption
	if domain := c.GetDIDDomain(); domain != "" {
		adapterOptions = append(adapterOptions, jose.WithDIDDomain(domain))
	}
	if c.GetKeyRotationEnabled() {
		adapterOptions = append(adapterOptions, jose.WithKeyRotation(c.GetDecryptionKeyAliases()))
	}
	adapter := jose.NewAdapter(kms.NewFromConfig(awsCfg), c.GetSigningKeyID(), c.GetEncryptionKeyID(), adapterOptions...)

	clientList, err := c.GetClients()
	if err != nil {
		return nil, nil, err
	}

	repos, store, closeStore, err := openStore(ctx, c)
	if err != nil {
		return nil, nil, err
	}
	repos.Clients = clients.NewStaticRepo(clientList)

	service, err := cri.NewService(repos, adapter,
		cri.Settings{
			Issuer:             c.GetIssuer(),
			SessionTTL:         c.GetSessionTTL(),
			AuthCodeTTL:        c.GetAuthCodeTTL(),
			AccessTokenTTL:     c.GetAccessTokenTTL(),
			CredentialTTL:      c.GetCredentialTTL(),
			CredentialClaimKey: c.GetCredentialClaimKey(),
		},
		cri.WithAuditEmitter(newAuditEmitter(c, sqs.NewFromConfig(awsCfg))),
	)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	srv, err := server.New(c, service, adapter, server.WithHealthCheck(store))
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return srv, closeStore, nil
}

func openStore(ctx context.Context, c config.Config) (cri.Repos, server.Pinger, func(), error) {
	switch c.GetSessionStore() {
	case config.SessionStoreMemory:
		log.Warn().Msg("Using in-memory session store; sessions are lost on restart")
		store := memorystore.New()
		return cri.Repos{Sessions: store.Sessions(), Persons: store.Persons()}, store, func() {}, nil
	case config.SessionStoreRedis:
		store, err := redisstore.New(ctx, redisstore.Config{
			Addr:      c.GetRedisAddr(),
			Password:  c.GetRedisPassword(),
			KeyPrefix: c.GetRedisKeyPrefix(),
		})
		if err != nil {
			return cri.Repos{}, nil, nil, err
		}
		closeStore := func() {
			if err := store.Close(); err != nil {
				log.Err(err).Msg("failed to close redis connection")
			}
		}
		return cri.Repos{Sessions: store.Sessions(), Persons: store.Persons()}, store, closeStore, nil
	default:
		return cri.Repos{}, nil, nil, errors.Errorf("unknown session store %q", c.GetSessionStore())
	}
}

func newAuditEmitter(c config.Config, client audit.SQSClient) *audit.Emitter {
	var publisher audit.Publisher = audit.LogPublisher{}
	if queueURL := c.GetAuditQueueURL(); queueURL != "" {
		publisher = audit.NewSQSPublisher(client, queueURL)
	} else {
		log.Warn().Msg("No audit queue configured; audit events are logged only")
	}
	return audit.NewEmitter(publisher, c.GetAuditEventPrefix(), c.GetIssuer(),
		audit.WithFailureHook(server.RecordAuditFailure))
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "server.ListenAndServe")
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server.Shutdown")
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
