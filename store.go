package main

import (
	"errors"

	"betube/models"
	"betube/pkg/session"

	"gorm.io/gorm"
)

// dbSessionStore adapts the users table to session.Store. All writes go
// through UpdateColumn so only current_refresh_token is ever touched.
type dbSessionStore struct{}

func (dbSessionStore) CurrentRefreshToken(subjectID uint) (string, error) {
	var user models.User
	if err := db.Select("id", "current_refresh_token").First(&user, subjectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", session.ErrNoSubject
		}
		return "", err
	}
	if user.CurrentRefreshToken == nil {
		return "", nil
	}
	return *user.CurrentRefreshToken, nil
}

func (dbSessionStore) SetCurrentRefreshToken(subjectID uint, token string) error {
	var value interface{} // empty token is stored as NULL
	if token != "" {
		value = token
	}
	res := db.Model(&models.User{}).Where("id = ?", subjectID).UpdateColumn("current_refresh_token", value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return session.ErrNoSubject
	}
	return nil
}

func (dbSessionStore) ReplaceCurrentRefreshToken(subjectID uint, old, replacement string) (bool, error) {
	// conditional write: the swap only lands if the stored value is still
	// the token being rotated, so concurrent rotations cannot both succeed
	res := db.Model(&models.User{}).
		Where("id = ? AND current_refresh_token = ?", subjectID, old).
		UpdateColumn("current_refresh_token", replacement)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
