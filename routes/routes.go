package routes

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"trashbin/controllers"
	"trashbin/jobs"
	"trashbin/middleware"
	"trashbin/models"
	"trashbin/services"
)

// ServiceContainer holds everything the HTTP surface depends on.
type ServiceContainer struct {
	JWTSecret string
	Users     *services.UserService
	Files     *services.FileService
	Trash     *services.TrashService
	Health    *services.HealthService
	Queue     *jobs.Queue
	Scheduler *jobs.Scheduler
	Gatherer  prometheus.Gatherer
}

// SetupRoutes registers the API under /api plus /health and /metrics.
func SetupRoutes(r *gin.Engine, sc *ServiceContainer) {
	auth := middleware.AuthMiddleware(sc.JWTSecret, principalResolver(sc.Users))

	r.GET("/health", controllers.NewHealthController(sc.Health).Health)
	if sc.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(sc.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	RegisterAuthRoutes(api, sc)
	RegisterUserRoutes(api, sc, auth)
	RegisterFileRoutes(api, sc, auth)
	RegisterSearchRoutes(api, sc, auth)
	RegisterTrashRoutes(api, sc, auth)
	RegisterAdminRoutes(api, sc, auth)
}

func RegisterAuthRoutes(rg *gin.RouterGroup, sc *ServiceContainer) {
	authController := controllers.NewAuthController(sc.Users)

	authGroup := rg.Group("/auth")
	{
		authGroup.POST("/register", authController.Register)
		authGroup.POST("/login", authController.Login) // also restores a deleted account
	}
}

func RegisterUserRoutes(rg *gin.RouterGroup, sc *ServiceContainer, auth gin.HandlerFunc) {
	userController := controllers.NewUserController(sc.Users)

	users := rg.Group("/users")
	users.Use(auth)
	{
		users.GET("/me", userController.Me)
		users.PATCH("/me", userController.UpdateMe)
		users.DELETE("/me", userController.DeleteMe) // soft delete

		admin := users.Group("")
		admin.Use(middleware.RequireRole(models.RoleAdmin))
		{
			admin.GET("", userController.ListUsers) // ?includeDeleted=true | ?onlyDeleted=true
			admin.GET("/:id", userController.GetUser)
			admin.PATCH("/:id/restore", userController.RestoreUser)
		}
	}
}

func RegisterFileRoutes(rg *gin.RouterGroup, sc *ServiceContainer, auth gin.HandlerFunc) {
	fileController := controllers.NewFileController(sc.Files)

	files := rg.Group("/files")
	files.Use(auth)
	{
		files.POST("", fileController.UploadFiles)
		files.GET("", fileController.GetAllFiles)
		files.GET("/:id", fileController.GetFile)
		files.DELETE("/:id", fileController.DeleteFile) // move to trash
	}
}

func RegisterSearchRoutes(rg *gin.RouterGroup, sc *ServiceContainer, auth gin.HandlerFunc) {
	searchController := controllers.NewSearchController(sc.Files)

	search := rg.Group("/search")
	search.Use(auth)
	{
		search.GET("/files", searchController.SearchFiles) // ?q=term
	}
}

func RegisterTrashRoutes(rg *gin.RouterGroup, sc *ServiceContainer, auth gin.HandlerFunc) {
	trashController := controllers.NewTrashController(sc.Trash)

	trash := rg.Group("/trash")
	trash.Use(auth)
	{
		trash.GET("", trashController.GetTrashItems)
		trash.PATCH("/:id/restore", trashController.RestoreFromTrash)
		trash.POST("/restore-multiple", trashController.RestoreMultipleItems)
	}
}

func RegisterAdminRoutes(rg *gin.RouterGroup, sc *ServiceContainer, auth gin.HandlerFunc) {
	purgeController := controllers.NewPurgeController(sc.Queue, sc.Scheduler)

	admin := rg.Group("/admin")
	admin.Use(auth, middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/purge-tasks", purgeController.ListTasks)
		admin.GET("/purge-failures", purgeController.ListFailures)
		admin.POST("/purge-scan", purgeController.TriggerScan)
	}
}

func principalResolver(users *services.UserService) middleware.PrincipalResolver {
	return func(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
		user, err := users.ActiveUser(ctx, id)
		if errors.Is(err, services.ErrUserNotFound) {
			return nil, middleware.ErrPrincipalNotFound
		}
		return user, err
	}
}
