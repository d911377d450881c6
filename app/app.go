package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fediglade/fediglade/db"
	"github.com/fediglade/fediglade/delivery"
	"github.com/fediglade/fediglade/domain"
	"github.com/fediglade/fediglade/fetcher"
	"github.com/fediglade/fediglade/identity"
	"github.com/fediglade/fediglade/importer"
	"github.com/fediglade/fediglade/inbox"
	"github.com/fediglade/fediglade/util"
	"github.com/fediglade/fediglade/web"
	"github.com/google/uuid"
)

// App wires the Fetcher, Importer, Inbox Receiver and Delivery Queue into
// one HTTP server and owns their lifecycle.
type App struct {
	config     *util.AppConfig
	httpServer *http.Server
	queue      *delivery.Queue
	queueCtx   context.Context
	queueStop  context.CancelFunc
	done       chan os.Signal
}

// New creates a new App instance with the given configuration
func New(conf *util.AppConfig) (*App, error) {
	return &App{
		config: conf,
		done:   make(chan os.Signal, 1),
	}, nil
}

// Initialize runs database migrations, mints the instance actor if it
// doesn't exist yet, and wires every component into the HTTP router.
func (a *App) Initialize() error {
	database := db.GetDB() // also runs Migrate on first call

	if a.config.Conf.WithAp {
		if err := a.ensureInstanceActor(database); err != nil {
			return fmt.Errorf("minting instance actor: %w", err)
		}
	}

	sign := fetcherSigner(database, a.config.Conf.InstanceActorName)
	fetch := fetcher.New(a.config.Conf.SslDomain, sign)
	imp := importer.New(database, fetch)
	rcv := inbox.New(database, imp, a.config.Conf.SslDomain)

	a.queue = delivery.New(database, delivery.NewSigner(database))
	a.queue.DB = database

	router, err := web.NewRouter(a.config, rcv)
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP router: %w", err)
	}

	a.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Conf.HttpPort),
		Handler: router,
	}

	return nil
}

// ensureInstanceActor mints the RSA and Ed25519 key pairs for the
// instance-wide signing actor (spec.md 6) the first time this node starts
// with ActivityPub enabled; subsequent starts find the row already there.
func (a *App) ensureInstanceActor(database *db.DB) error {
	username := a.config.Conf.InstanceActorName
	if username == "" {
		username = "actor"
		a.config.Conf.InstanceActorName = username
	}

	err, existing := database.ReadActorByUsername(username)
	if err == nil && existing != nil {
		return nil
	}

	rsaKeys, err := identity.GenerateRSAKeyPair()
	if err != nil {
		return err
	}
	edKeys, err := identity.GenerateEd25519KeyPair()
	if err != nil {
		return err
	}

	authority := identity.ServerAuthority(a.config.Conf.SslDomain)
	actorURI := authority.ActorID(username)

	instanceActor := &domain.Actor{
		Id:             uuid.New(),
		Username:       username,
		Kind:           domain.ActorApplication,
		ActorURI:       actorURI,
		InboxURI:       identity.InboxURI(actorURI),
		OutboxURI:      identity.OutboxURI(actorURI),
		DisplayName:    util.Name + " instance actor",
		PublicKeyPEM:   rsaKeys.Public,
		PrivateKeyPEM:  rsaKeys.Private,
		Ed25519Public:  edKeys.Public,
		Ed25519Private: edKeys.Private,
	}

	log.Printf("minting instance actor %s", actorURI)
	return database.CreateActor(instanceActor)
}

// fetcherSigner signs outbound GETs with the requesting local actor's key,
// falling back to the instance actor when none is given (anonymous fetch
// of a remote object not yet tied to any local follow), mirroring
// delivery.NewSigner but keyed by *domain.Actor rather than an id.
func fetcherSigner(database *db.DB, instanceActorUsername string) fetcher.Signer {
	return func(req *http.Request, as *domain.Actor) error {
		actor := as
		if actor == nil {
			err, instance := database.ReadActorByUsername(instanceActorUsername)
			if err != nil || instance == nil {
				return fmt.Errorf("fetcher: instance actor %s not found: %w", instanceActorUsername, err)
			}
			actor = instance
		}
		if actor.PrivateKeyPEM == "" {
			return fmt.Errorf("fetcher: actor %s has no private key", actor.Username)
		}
		priv, err := identity.ParsePrivateKey(actor.PrivateKeyPEM)
		if err != nil {
			return fmt.Errorf("fetcher: parsing private key for %s: %w", actor.Username, err)
		}
		keyID := actor.ActorURI + "#main-key"
		return identity.SignRequest(req, priv, keyID)
	}
}

// Start starts the delivery worker and HTTP server and blocks until a
// shutdown signal is received.
func (a *App) Start() error {
	if a.config.Conf.WithAp {
		a.queueCtx, a.queueStop = context.WithCancel(context.Background())
		go a.queue.Start(a.queueCtx)
	}

	signal.Notify(a.done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("Starting HTTP server on %s:%d", a.config.Conf.Host, a.config.Conf.HttpPort)
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-a.done
	log.Println("Shutdown signal received")

	return a.Shutdown()
}

// Shutdown gracefully stops the HTTP server and delivery worker with a 30
// second timeout.
func (a *App) Shutdown() error {
	log.Println("Initiating graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var shutdownErr error

	log.Println("Stopping HTTP server...")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		shutdownErr = err
	} else {
		log.Println("HTTP server stopped gracefully")
	}

	if a.queueStop != nil {
		log.Println("Stopping delivery queue...")
		a.queueStop()
	}

	log.Println("All servers stopped")
	return shutdownErr
}
