package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/shopdome/commerce/internal/auth/domain"
	"github.com/shopdome/commerce/internal/auth/password"
	"gorm.io/gorm"
)

// EnsureDefaultAdmin seeds a back-office account so a fresh deployment
// can be administered without manual database access.
func EnsureDefaultAdmin(db *gorm.DB, email, rawPassword string) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if email == "" || rawPassword == "" {
		return nil
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user authdomain.AdminUser
		err := tx.WithContext(ctx).
			Where("email = ?", strings.ToLower(email)).
			First(&user).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hashed, err := password.Hash(rawPassword)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		user = authdomain.AdminUser{
			ID:           node.Generate(),
			Email:        strings.ToLower(email),
			PasswordHash: hashed,
			Role:         authdomain.RoleSuperAdmin,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return tx.WithContext(ctx).Create(&user).Error
	})
}
