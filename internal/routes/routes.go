package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/whristorium/backend/internal/config"
	"github.com/whristorium/backend/internal/handlers"
	"github.com/whristorium/backend/internal/middleware"
	"github.com/whristorium/backend/internal/services"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config) {
	telegramService := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)
	esewaClient := services.NewEsewaClient(cfg.Esewa)
	orderService := services.NewOrderService(db, telegramService, cfg.TaxRate)
	paymentService := services.NewPaymentService(db, esewaClient, telegramService, cfg.BackendURL, cfg.FrontendURL)

	authHandler := handlers.NewAuthHandler(db, cfg)
	profileHandler := handlers.NewProfileHandler(db)
	productHandler := handlers.NewProductHandler(db)
	cartHandler := handlers.NewCartHandler(db)
	favoriteHandler := handlers.NewFavoriteHandler(db)
	orderHandler := handlers.NewOrderHandler(orderService)
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	adminHandler := handlers.NewAdminHandler(db, orderService)

	requireAuth := middleware.AuthMiddleware(cfg)
	requireAdmin := middleware.AdminOnly()

	api := app.Group("/api")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "message": "WHRISTORIUM API is running"})
	})

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", requireAuth, authHandler.Me)

	// Users
	users := api.Group("/users", requireAuth)
	users.Put("/me", profileHandler.UpdateProfile)
	users.Put("/me/password", profileHandler.ChangePassword)
	users.Get("/me/addresses", profileHandler.ListAddresses)
	users.Post("/me/addresses", profileHandler.CreateAddress)
	users.Put("/me/addresses/:id", profileHandler.UpdateAddress)
	users.Delete("/me/addresses/:id", profileHandler.DeleteAddress)
	users.Get("/", requireAdmin, adminHandler.ListUsers)
	users.Get("/:id", requireAdmin, adminHandler.GetUser)
	users.Put("/:id/role", requireAdmin, adminHandler.UpdateUserRole)
	users.Delete("/:id", requireAdmin, adminHandler.DeleteUser)

	// Products
	products := api.Group("/products")
	products.Get("/", productHandler.ListProducts)
	products.Get("/brands", productHandler.ListBrands)
	products.Get("/:id", productHandler.GetProduct)
	products.Post("/", requireAuth, requireAdmin, productHandler.CreateProduct)
	products.Put("/:id", requireAuth, requireAdmin, productHandler.UpdateProduct)
	products.Patch("/:id/stock", requireAuth, requireAdmin, productHandler.UpdateStock)
	products.Delete("/:id", requireAuth, requireAdmin, productHandler.DeleteProduct)

	// Cart
	cart := api.Group("/cart", requireAuth)
	cart.Get("/", cartHandler.GetCart)
	cart.Post("/", cartHandler.AddToCart)
	cart.Put("/:productId", cartHandler.UpdateCartItem)
	cart.Delete("/:productId", cartHandler.RemoveCartItem)
	cart.Delete("/", cartHandler.ClearCart)

	// Favorites
	favorites := api.Group("/favorites", requireAuth)
	favorites.Get("/", favoriteHandler.ListFavorites)
	favorites.Post("/", favoriteHandler.AddFavorite)
	favorites.Get("/check/:productId", favoriteHandler.CheckFavorite)
	favorites.Delete("/:productId", favoriteHandler.RemoveFavorite)

	// Orders
	orders := api.Group("/orders", requireAuth)
	orders.Post("/", orderHandler.CreateOrder)
	orders.Get("/", requireAdmin, orderHandler.ListOrders)
	orders.Get("/stats", requireAdmin, orderHandler.Stats)
	orders.Get("/user/:userId", orderHandler.ListUserOrders)
	orders.Get("/:id", orderHandler.GetOrder)
	orders.Put("/:id", requireAdmin, orderHandler.UpdateOrder)
	orders.Post("/:id/cancel", orderHandler.CancelOrder)

	// Payments. The eSewa redirects arrive from the shopper's browser without a token.
	payments := api.Group("/payments")
	payments.Get("/esewa/success", paymentHandler.EsewaSuccess)
	payments.Get("/esewa/failure", paymentHandler.EsewaFailure)
	payments.Post("/esewa/initiate", requireAuth, paymentHandler.InitiateEsewa)
	payments.Post("/esewa/verify", requireAuth, paymentHandler.VerifyEsewa)
	payments.Get("/status/:orderId", requireAuth, paymentHandler.PaymentStatus)

	// Admin
	admin := api.Group("/admin", requireAuth, requireAdmin)
	admin.Get("/dashboard", adminHandler.Dashboard)
	admin.Get("/orders/export", adminHandler.ExportOrders)
}
