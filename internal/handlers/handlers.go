package handlers

import (
	"log/slog"
	"time"

	"github.com/tariel-x/lookbook/internal/catalog"
	"github.com/tariel-x/lookbook/internal/config"
	"github.com/tariel-x/lookbook/internal/events"
	"github.com/tariel-x/lookbook/internal/push"

	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

// Services groups the domain components the HTTP layer talks to.
type Services struct {
	DB         *gorm.DB
	Products   *catalog.Manager
	Registry   *push.Registry
	Dispatcher *push.Dispatcher
	Recorder   *push.Recorder
	Hub        *events.Hub
	Logger     *slog.Logger
}

type Handlers struct {
	config     *config.Config
	db         *gorm.DB
	products   *catalog.Manager
	registry   *push.Registry
	dispatcher *push.Dispatcher
	recorder   *push.Recorder
	hub        *events.Hub
	wsUpgrader websocket.Upgrader
	logger     *slog.Logger
	nowFn      func() time.Time
}

func New(config *config.Config, svc Services, wsUpgrader websocket.Upgrader) *Handlers {
	logger := svc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		config:     config,
		db:         svc.DB,
		products:   svc.Products,
		registry:   svc.Registry,
		dispatcher: svc.Dispatcher,
		recorder:   svc.Recorder,
		hub:        svc.Hub,
		wsUpgrader: wsUpgrader,
		logger:     logger,
		nowFn:      time.Now,
	}
}
