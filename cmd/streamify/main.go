package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/goevery/streamify/internal/auth"
	"github.com/goevery/streamify/internal/chatprovider"
	chatmemory "github.com/goevery/streamify/internal/chatprovider/memory"
	chatmongodb "github.com/goevery/streamify/internal/chatprovider/mongodb"
	"github.com/goevery/streamify/internal/friendship"
	friendshipmemory "github.com/goevery/streamify/internal/friendship/memory"
	friendshipmongodb "github.com/goevery/streamify/internal/friendship/mongodb"
	"github.com/goevery/streamify/internal/handler"
	"github.com/goevery/streamify/internal/presence"
	"github.com/goevery/streamify/internal/relay"
	"github.com/goevery/streamify/internal/server"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type App struct {
	logger          *zap.Logger
	settings        Settings
	registry        *presence.InMemoryRegistry
	websocketServer *server.WebSocketServer
	restServer      *server.RESTServer
	closeStorage    func(ctx context.Context) error
}

func NewApp(ctx context.Context, logger *zap.Logger, settings Settings) (*App, error) {
	tokenTTL, err := settings.TokenTTL()
	if err != nil {
		return nil, fmt.Errorf("invalid CHAT_TOKEN_TTL: %w", err)
	}

	originChecker := server.NewOriginChecker(settings.AllowedOriginList())
	websocketUpgrader := &websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		CheckOrigin:       originChecker.Check,
		EnableCompression: true,
	}

	authenticator := auth.NewAuthenticator(settings.JWTSecret)
	tokenIssuer := chatprovider.NewTokenIssuer(settings.ChatAPISecret, tokenTTL)

	provider, store, closeStorage, err := buildStorage(ctx, logger, settings, tokenIssuer)
	if err != nil {
		return nil, err
	}

	registry := presence.NewInMemoryRegistry(logger.Named("registry"))
	relayer := relay.New(logger.Named("relay"), registry)
	identityValidator := handler.NewIdentityValidator()

	router := server.NewRouter(
		logger,
		handler.NewHeartbeatHandler(),
		handler.NewNotifyRecipientHandler(relayer),
	)

	websocketServer := server.NewWebSocketServer(
		logger.Named("websocket"),
		websocketUpgrader,
		registry,
		router,
		settings.SendBufferSize,
	)
	restServer := server.NewRESTServer(
		logger.Named("rest"),
		authenticator,
		originChecker,
		server.RESTHandlers{
			Token:               handler.NewTokenHandler(ctx, provider, settings.ChatAPIKey, tokenTTL),
			UnreadConversations: handler.NewUnreadConversationsHandler(provider),
			OpenConversation:    handler.NewOpenConversationHandler(identityValidator, provider),
			SendMessage:         handler.NewSendMessageHandler(provider),
			StartCall:           handler.NewStartCallHandler(provider, settings.BaseURL),
			FriendRequests:      handler.NewFriendRequestsHandler(store),
			SendFriendRequest:   handler.NewSendFriendRequestHandler(identityValidator, store, relayer),
			AcceptFriendRequest: handler.NewAcceptFriendRequestHandler(store),
			Friends:             handler.NewFriendsHandler(store),
		},
	)

	return &App{
		logger,
		settings,
		registry,
		websocketServer,
		restServer,
		closeStorage,
	}, nil
}

// buildStorage picks the collaborators: MongoDB when MONGODB_URI is set,
// process memory otherwise.
func buildStorage(
	ctx context.Context,
	logger *zap.Logger,
	settings Settings,
	tokenIssuer *chatprovider.TokenIssuer,
) (chatprovider.Provider, friendship.Store, func(ctx context.Context) error, error) {
	if settings.MongoURI == "" {
		logger.Warn("MONGODB_URI is not set, conversations and friend requests are kept in memory")

		noop := func(ctx context.Context) error { return nil }

		return chatmemory.NewProvider(tokenIssuer), friendshipmemory.NewStore(), noop, nil
	}

	client, err := mongo.Connect(options.Client().ApplyURI(settings.MongoURI))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	provider := chatmongodb.NewProvider(client, settings.MongoDatabase, tokenIssuer)
	if err := provider.Setup(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to set up conversation storage: %w", err)
	}

	store := friendshipmongodb.NewStore(client, settings.MongoDatabase)
	if err := store.Setup(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to set up friend request storage: %w", err)
	}

	logger.Info("using mongodb storage", zap.String("database", settings.MongoDatabase))

	return provider, store, client.Disconnect, nil
}

func (a *App) Run(ctx context.Context) error {
	address := fmt.Sprintf("0.0.0.0:%d", a.settings.Port)

	router := mux.NewRouter().
		PathPrefix(a.settings.BasePath).
		Subrouter()

	a.websocketServer.Register(router)
	a.restServer.Register(router)

	httpServer := &http.Server{
		Addr:              address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting http server",
			zap.String("address", address),
			zap.String("basePath", a.settings.BasePath))

		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()

		a.logger.Info("stopping http server")

		shutdownCtx, shutdownCtxCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCtxCancel()

		a.websocketServer.Close()
		a.registry.Close()

		err := httpServer.Shutdown(shutdownCtx)
		if err != nil {
			a.logger.Error("http server shutdown failed", zap.Error(err))
		}

		if err := a.closeStorage(shutdownCtx); err != nil {
			a.logger.Error("failed to close storage", zap.Error(err))
		}

		a.logger.Info("http server stopped")

		return err
	})

	return g.Wait()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var settings Settings
	_, err := env.UnmarshalFromEnviron(&settings)
	if err != nil {
		bootstrapLogger, _ := zap.NewDevelopment()
		bootstrapLogger.Fatal("failed to parse settings from environment", zap.Error(err))
	}

	logger, err := buildLogger(settings.LogEncoding, settings.LogLevel)
	if err != nil {
		bootstrapLogger, _ := zap.NewDevelopment()
		bootstrapLogger.Fatal("failed to build logger", zap.Error(err))
	}
	defer logger.Sync()

	app, err := NewApp(ctx, logger, settings)
	if err != nil {
		logger.Fatal("failed to setup", zap.Error(err))
	}

	err = app.Run(ctx)
	if err != nil {
		logger.Fatal("application error", zap.Error(err))
	}
}
