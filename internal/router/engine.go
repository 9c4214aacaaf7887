package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"uchef.app/cart-api/pkg/global"
)

func NewEngine(cfg global.Config) *gin.Engine {
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	return router
}

func InitializeRoutes(router *gin.Engine, h *Handler, jwtSecret string) {
	api := router.Group("/api")
	{
		api.GET("/health", h.HealthCheck)

		cart := api.Group("/cart/:sessionId")
		cart.Use(SessionMiddleware())
		{
			cart.GET("", h.GetCart)
			cart.GET("/count", h.GetCartCount)
			cart.GET("/conflict", h.CheckRestaurantConflict)
			cart.POST("/items", h.AddToCart)
			cart.PUT("/items/:type/:id", h.UpdateCartItem)
			cart.DELETE("/items/:type/:id", h.RemoveFromCart)
			cart.DELETE("/clear", h.ClearCart)
			cart.GET("/prompts", h.GetPrompts)
			cart.POST("/prompts/:promptId", h.AnswerPrompt)
		}

		session := api.Group("/session/:sessionId")
		session.Use(SessionMiddleware())
		{
			session.POST("/login", AuthMiddleware(jwtSecret), h.LoginSucceeded)
			session.POST("/current-user", AuthMiddleware(jwtSecret), h.CurrentUserResolved)
			session.POST("/logout", AuthMiddleware(jwtSecret), h.Logout)
		}
	}
}
