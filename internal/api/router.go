package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ksred/klear-brokerage/internal/catalog"
	"github.com/ksred/klear-brokerage/internal/config"
	"github.com/ksred/klear-brokerage/internal/directory"
	"github.com/ksred/klear-brokerage/internal/trading"
	"github.com/ksred/klear-brokerage/internal/watchlist"
	"github.com/ksred/klear-brokerage/pkg/middleware"
)

type handlers struct {
	clients     *directory.GinHandlers
	instruments *catalog.GinHandlers
	orders      *trading.GinHandlers
	watchlists  *watchlist.GinHandlers
}

// NewRouter wires every service onto db and returns the HTTP router with middleware applied
func NewRouter(db *gorm.DB, limits config.RateLimits) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(), middleware.RateLimit(limits))

	clientService := directory.NewService(db)
	instrumentService := catalog.NewService(db)
	orderService := trading.NewService(trading.NewDatabase(db), clientService, instrumentService)
	watchListService := watchlist.NewService(watchlist.NewDatabase(db), clientService, instrumentService)

	setupRoutes(router, handlers{
		clients:     directory.NewGinHandlers(clientService),
		instruments: catalog.NewGinHandlers(instrumentService),
		orders:      trading.NewGinHandlers(orderService),
		watchlists:  watchlist.NewGinHandlers(watchListService),
	})

	return router
}

// setupRoutes configures all API endpoints and their handlers
// Internal routes carry the settlement status hook and should only be reachable from the internal network
func setupRoutes(router *gin.Engine, h handlers) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		clients := v1.Group("/clients")
		{
			clients.POST("", h.clients.RegisterClientHandler())
			clients.GET("", h.clients.ListClientsHandler())
			clients.GET("/search", h.clients.SearchClientsHandler())
			clients.GET("/:client_id", h.clients.GetClientHandler())
			clients.PUT("/:client_id/status", h.clients.UpdateClientStatusHandler())
		}

		instruments := v1.Group("/instruments")
		{
			instruments.POST("", h.instruments.RegisterInstrumentHandler())
			instruments.GET("", h.instruments.ListInstrumentsHandler())
			instruments.GET("/search", h.instruments.SearchInstrumentsHandler())
			instruments.GET("/exchange-type/:exchange_type", h.instruments.ListByExchangeTypeHandler())
			instruments.GET("/:instrument_id", h.instruments.GetInstrumentHandler())
			instruments.PUT("/:instrument_id/price", h.instruments.UpdatePriceHandler())
		}

		orders := v1.Group("/orders")
		{
			orders.POST("", h.orders.PlaceOrderHandler())
			orders.GET("", h.orders.ListOrdersHandler())
			orders.GET("/pending", h.orders.ListPendingOrdersHandler())
			orders.GET("/client/:client_id", h.orders.ListClientOrdersHandler())
			orders.GET("/:order_id", h.orders.GetOrderHandler())
			orders.PUT("/:order_id/modify", h.orders.ModifyOrderHandler())
			orders.DELETE("/:order_id", h.orders.CancelOrderHandler())
		}

		watchlists := v1.Group("/watchlists")
		{
			watchlists.POST("", h.watchlists.CreateWatchListHandler())
			watchlists.GET("/client/:client_id", h.watchlists.ListClientWatchListsHandler())
			watchlists.GET("/:watchlist_id", h.watchlists.GetWatchListHandler())
			watchlists.GET("/:watchlist_id/items", h.watchlists.GetWatchListItemsHandler())
			watchlists.GET("/:watchlist_id/summary", h.watchlists.SummaryHandler())
			watchlists.PUT("/:watchlist_id", h.watchlists.RenameWatchListHandler())
			watchlists.DELETE("/:watchlist_id", h.watchlists.DeleteWatchListHandler())
			watchlists.POST("/:watchlist_id/instruments", h.watchlists.AddInstrumentHandler())
			watchlists.DELETE("/:watchlist_id/instruments/:instrument_id", h.watchlists.RemoveInstrumentHandler())
		}

		internal := v1.Group("/internal")
		{
			internal.PUT("/orders/:order_id/status", h.orders.UpdateOrderStatusHandler())
		}
	}
}
