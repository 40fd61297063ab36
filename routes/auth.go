package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"local-rag-platform/internal/config"
	"local-rag-platform/internal/logger"
	"local-rag-platform/models"
	"local-rag-platform/utils"
)

// SetupAuthRoutes registers registration and login endpoints.
func SetupAuthRoutes(router *gin.Engine, cfg *config.Config, db *mongo.Database) {
	users := db.Collection("users")

	auth := router.Group("/auth")
	{
		auth.POST("/register", handleRegister(cfg, users))
		auth.POST("/login", handleLogin(cfg, users))
	}
}

func handleRegister(cfg *config.Config, users *mongo.Collection) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid registration request", err.Error())
			return
		}

		count, err := users.CountDocuments(c.Request.Context(), bson.M{"username": req.Username})
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to check username", nil)
			return
		}
		if count > 0 {
			utils.RespondWithConflict(c, "Username already taken")
			return
		}

		hash, err := utils.HashPassword(req.Password, cfg.BcryptCost)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to hash password", nil)
			return
		}

		now := time.Now()
		user := models.User{
			Username:     req.Username,
			Name:         req.Name,
			PasswordHash: hash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		result, err := users.InsertOne(c.Request.Context(), user)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create user", nil)
			return
		}

		logger.Info("User registered", "username", req.Username)

		c.JSON(http.StatusCreated, gin.H{
			"id":       result.InsertedID,
			"username": req.Username,
		})
	}
}

func handleLogin(cfg *config.Config, users *mongo.Collection) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid login request", err.Error())
			return
		}

		var user models.User
		err := users.FindOne(c.Request.Context(), bson.M{"username": req.Username}).Decode(&user)
		if err != nil || !utils.CheckPassword(req.Password, user.PasswordHash) {
			utils.RespondWithUnauthorized(c, "Invalid username or password")
			return
		}

		expiresIn, err := time.ParseDuration(cfg.JWTExpiresIn)
		if err != nil {
			expiresIn = 24 * time.Hour
		}

		token, err := utils.GenerateJWT(user.ID.Hex(), user.Username, cfg.JWTSecret, expiresIn)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue token", nil)
			return
		}

		c.JSON(http.StatusOK, models.LoginResponse{
			Token:     token,
			ExpiresAt: time.Now().Add(expiresIn),
			User:      user,
		})
	}
}
