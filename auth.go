package main

import (
	"errors"
	"fmt"
	"strings"

	"betube/models"

	"golang.org/x/crypto/bcrypt"
)

// ErrUserExists is returned when registration collides with an existing
// username or email.
var ErrUserExists = errors.New("user with username or email already exists")

// Auth helpers duplicated into root package so handlers in the root can call them.
func RegisterUser(fullname, username, email, password string) (models.User, error) {
	fullname = strings.TrimSpace(fullname)
	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.ToLower(strings.TrimSpace(email))
	if fullname == "" || username == "" || email == "" {
		return models.User{}, fmt.Errorf("all fields are required")
	}
	if len(password) < 6 { // basic password policy
		return models.User{}, fmt.Errorf("password too short (min 6)")
	}
	// pre-check existing (optimistic)
	var existing models.User
	if err := db.Where("username = ? OR email = ?", username, email).First(&existing).Error; err == nil {
		return models.User{}, ErrUserExists
	}
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}
	// ensure role exists (idempotent)
	var role models.Role
	if err := db.Where("name = ?", "user").First(&role).Error; err != nil {
		// try create
		role = models.Role{Name: "user", Description: "regular user"}
		if err2 := db.Where("name = ?", role.Name).FirstOrCreate(&role).Error; err2 != nil {
			return models.User{}, fmt.Errorf("failed to ensure user role: %v", err2)
		}
	}
	rid := role.ID
	user := models.User{FullName: fullname, Username: username, Email: email, HashedPassword: hashedPassword, RoleID: &rid}
	if err := db.Create(&user).Error; err != nil {
		if isUniqueConstraintError(err) { // race condition after initial check
			return models.User{}, ErrUserExists
		}
		return models.User{}, err
	}
	return user, nil
}

// Authenticate resolves the account by username or email and checks the
// password. Lookup and password failures are indistinguishable on purpose.
func Authenticate(identifier, password string) (models.User, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	var user models.User
	if err := db.Where("username = ? OR email = ?", identifier, identifier).First(&user).Error; err != nil {
		return models.User{}, fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(password)); err != nil {
		return models.User{}, fmt.Errorf("invalid credentials")
	}
	return user, nil
}

// ChangePassword verifies the old password and stores a new hash. Only the
// hashed_password column is touched.
func ChangePassword(userID uint, oldPassword, newPassword string) error {
	if len(newPassword) < 6 {
		return fmt.Errorf("password too short (min 6)")
	}
	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		return fmt.Errorf("user not found")
	}
	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(oldPassword)); err != nil {
		return fmt.Errorf("invalid credentials")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return db.Model(&models.User{}).Where("id = ?", user.ID).Update("hashed_password", hash).Error
}

// local copy (cannot rely on process binary helper)
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "already exists")
}
