package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/agriconnect/agriconnect-api/models"
)

// CreateUserWithSession seeds a user of the given role and an unexpired
// session for them, returning both. The session token can be sent as a
// Bearer token against RequireSession-guarded routes.
func CreateUserWithSession(t *testing.T, db *gorm.DB, email, role string) (models.User, models.Session) {
	t.Helper()
	RequireTestEnvironment(t)

	user := models.User{
		FullName: "Test " + role,
		Email:    email,
		Role:     role,
	}
	if role == models.RoleFarmer {
		user.WalletAddress = "0xwallet-" + email
	}
	if err := user.SetPassword("test-password-123"); err != nil {
		t.Fatalf("Failed to hash test password: %v", err)
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	session := models.Session{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		Role:      user.Role,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := db.Create(&session).Error; err != nil {
		t.Fatalf("Failed to create test session: %v", err)
	}

	return user, session
}

// BearerHeader formats a session token as an Authorization header value
func BearerHeader(session models.Session) string {
	return "Bearer " + session.Token
}
