package handlers

import (
	"github.com/gin-gonic/gin"

	"crowpro-api/helper"
	"crowpro-api/middleware"
	"crowpro-api/models"
)

// Routes holds everything the API routes are built from. AuthLimit may be nil
// when rate limiting is disabled.
type Routes struct {
	Auth         *AuthHandler
	Publications *PublicationHandler
	Users        *UserHandler
	Stats        *StatsHandler
	Health       *HealthHandler
	Verifier     middleware.TokenVerifier
	Helper       *helper.HTTPHelper
	AuthLimit    gin.HandlerFunc
}

func (r Routes) Register(router *gin.Engine) {
	requireAuth := middleware.AuthMiddleware(r.Verifier, r.Helper)
	optionalAuth := middleware.OptionalAuth(r.Verifier)
	limited := func(h gin.HandlerFunc) []gin.HandlerFunc {
		if r.AuthLimit == nil {
			return []gin.HandlerFunc{h}
		}
		return []gin.HandlerFunc{r.AuthLimit, h}
	}

	// Health check
	router.GET("/health", r.Health.Health)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/signup", limited(r.Auth.Signup)...)
			auth.POST("/login", limited(r.Auth.Login)...)
			auth.POST("/token/refresh", limited(r.Auth.Refresh)...)
			auth.POST("/logout", requireAuth, r.Auth.Logout)
			auth.POST("/password/reset", requireAuth, r.Auth.PasswordReset)
			auth.GET("/current_user", requireAuth, r.Auth.CurrentUser)
		}

		for path, pubType := range map[string]models.PublicationType{
			"/articles":   models.TypeArticle,
			"/editorials": models.TypeEditorial,
		} {
			group := v1.Group(path)
			{
				group.GET("", optionalAuth, r.Publications.List(pubType))
				group.GET("/:slug", optionalAuth, r.Publications.Get(pubType))
				group.POST("", requireAuth, r.Publications.Create(pubType))
				group.PATCH("/:slug", requireAuth, r.Publications.Update(pubType))
				group.DELETE("/:slug", requireAuth, r.Publications.Hide(pubType))
				group.PATCH("/:slug/update-authors", requireAuth, r.Publications.UpdateAuthors(pubType))
				group.PUT("/:slug/thumbnail", requireAuth, r.Publications.UploadThumbnail(pubType))
			}
		}

		publications := v1.Group("/publications")
		{
			publications.GET("", r.Publications.PublicList)
			publications.GET("/:slug", r.Publications.PublicGet)
			publications.POST("/:slug/approve", requireAuth, r.Publications.Approve)
			publications.POST("/:slug/publish", requireAuth, r.Publications.Publish)
			publications.POST("/:slug/unpublish", requireAuth, r.Publications.Unpublish)
		}

		authors := v1.Group("/authors")
		{
			authors.GET("/me/publications", requireAuth, r.Publications.ListMine)
			authors.GET("/:id/publications", r.Publications.ListByAuthor)
		}

		users := v1.Group("/users", requireAuth)
		{
			users.GET("", r.Users.List())
			users.GET("/authors", r.Users.List(models.RoleAuthor, models.RoleEditor))
			users.GET("/readers", r.Users.List(models.RoleReader))
			users.PATCH("/me", r.Users.UpdateMe)
			users.PUT("/me/image", r.Users.UpdateMyImage)
			users.DELETE("/me", r.Users.DeactivateMe)
			users.GET("/:id", r.Users.Get)
			users.DELETE("/:id", r.Users.Deactivate)
			users.PUT("/:id/role", r.Users.ChangeRole)
		}

		v1.GET("/stats", requireAuth, r.Stats.Statistics)
		v1.GET("/request-logs", requireAuth, r.Stats.RequestLogs)
	}
}
