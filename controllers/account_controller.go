package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"mse_backend/models"
	"mse_backend/services/quota"
)

// AccountController manages API consumer accounts and their keys. All
// endpoints sit behind the operator session.
type AccountController struct {
	db     *gorm.DB
	ledger *quota.Ledger
}

func NewAccountController(db *gorm.DB, ledger *quota.Ledger) *AccountController {
	return &AccountController{db: db, ledger: ledger}
}

// CreateUser handles POST /api/admin/users. The generated API key is
// returned in full exactly once, here.
func (ac *AccountController) CreateUser(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		FullName string `json:"full_name"`
		Company  string `json:"company"`
		Plan     string `json:"plan"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "bad_request",
			"message": "A valid email is required",
		})
		return
	}

	plan := req.Plan
	if plan == "" {
		plan = models.PlanFree
	}
	if !models.IsValidPlan(plan) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":       "bad_request",
			"message":     "Unknown plan: " + plan,
			"valid_plans": models.ValidPlans(),
		})
		return
	}

	user := models.User{
		Email:    req.Email,
		FullName: req.FullName,
		Company:  req.Company,
		IsActive: true,
	}
	key := models.APIKey{Name: "default", IsActive: true}

	err := ac.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.Subscription{
			UserID:   user.ID,
			Plan:     plan,
			IsActive: true,
		}).Error; err != nil {
			return err
		}
		key.UserID = user.ID
		return tx.Create(&key).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "conflict",
				"message": "A user with that email already exists",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to create user",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":    user,
		"plan":    plan,
		"api_key": key.Key,
	})
}

// GetUserUsage handles GET /api/admin/users/:id/usage
func (ac *AccountController) GetUserUsage(c *gin.Context) {
	var user models.User
	if err := ac.db.First(&user, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "User not found",
		})
		return
	}

	var sub models.Subscription
	if err := ac.db.Where("user_id = ?", user.ID).First(&sub).Error; err != nil {
		sub = models.Subscription{UserID: user.ID, Plan: models.PlanFree}
	}

	usage, err := ac.ledger.CurrentUsage(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load usage",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": user.ID,
		"email":   user.Email,
		"plan":    sub.Plan,
		"usage":   usage,
		"limit":   sub.MonthlyLimit(),
	})
}

// RotateKey handles POST /api/admin/users/:id/keys/rotate. The old keys
// are disabled and a fresh one is issued.
func (ac *AccountController) RotateKey(c *gin.Context) {
	var user models.User
	if err := ac.db.First(&user, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "User not found",
		})
		return
	}

	key := models.APIKey{UserID: user.ID, Name: "rotated", IsActive: true}
	err := ac.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.APIKey{}).
			Where("user_id = ?", user.ID).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Create(&key).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to rotate key",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user_id": user.ID,
		"api_key": key.Key,
	})
}
