package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
)

func TestAuth(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Auth Module Suite")
}

// Mock UserRepository for testing
type mockUserRepository struct {
	usersByEmail  map[string]*User
	usersByID     map[string]*User
	returnError   bool
	errorToReturn error
}

func newMockUserRepository() *mockUserRepository {
	hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("correct_password"), bcrypt.MinCost)

	users := []*User{
		{
			ID:                "user-1",
			Email:             "staff@example.com",
			Name:              "Staff",
			PasswordHash:      string(hashedPassword),
			AllowedAccountIDs: StringList{"acct-bank"},
			IsActive:          true,
		},
		{
			ID:           "user-2",
			Email:        "admin@example.com",
			Name:         "Admin",
			PasswordHash: string(hashedPassword),
			IsAdmin:      true,
			IsActive:     true,
		},
		{
			ID:           "user-3",
			Email:        "former@example.com",
			Name:         "Former Employee",
			PasswordHash: string(hashedPassword),
			IsActive:     false,
		},
	}

	repo := &mockUserRepository{
		usersByEmail: make(map[string]*User),
		usersByID:    make(map[string]*User),
	}
	for _, user := range users {
		repo.usersByEmail[user.Email] = user
		repo.usersByID[user.ID] = user
	}
	return repo
}

func (m *mockUserRepository) GetByEmail(email string) (*User, error) {
	if m.returnError {
		return nil, m.errorToReturn
	}
	if user, exists := m.usersByEmail[email]; exists {
		return user, nil
	}
	return nil, ErrUserNotFound
}

func (m *mockUserRepository) GetByID(id string) (*User, error) {
	if m.returnError {
		return nil, m.errorToReturn
	}
	if user, exists := m.usersByID[id]; exists {
		return user, nil
	}
	return nil, ErrUserNotFound
}

func (m *mockUserRepository) Create(user *User) error {
	if m.returnError {
		return m.errorToReturn
	}
	m.usersByEmail[user.Email] = user
	m.usersByID[user.ID] = user
	return nil
}

func (m *mockUserRepository) setError(err error) {
	m.returnError = true
	m.errorToReturn = err
}

var _ = ginkgo.Describe("AuthService", func() {
	var (
		service       *Service
		mockRepo      *mockUserRepository
		tokenGen      *JWTTokenGenerator
		accessSecret  string        = "test-access-secret"
		refreshSecret string        = "test-refresh-secret"
		accessTTL     time.Duration = 15 * time.Minute
		refreshTTL    time.Duration = 24 * time.Hour
	)

	ginkgo.BeforeEach(func() {
		mockRepo = newMockUserRepository()
		tokenGen = NewJWTTokenGenerator(accessSecret, refreshSecret, accessTTL, refreshTTL)
		service = NewService(mockRepo, tokenGen, bcrypt.MinCost)
	})

	ginkgo.Describe("Authenticate", func() {
		ginkgo.Context("when credentials are valid", func() {
			ginkgo.It("should return access and refresh tokens", func() {
				// Given
				dto := LoginDTO{
					Email:    "staff@example.com",
					Password: "correct_password",
				}

				// When
				tokens, err := service.Authenticate(dto)

				// Then
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(tokens.AccessToken).ToNot(gomega.BeEmpty())
				gomega.Expect(tokens.RefreshToken).ToNot(gomega.BeEmpty())
				gomega.Expect(tokens.AccessToken).ToNot(gomega.Equal(tokens.RefreshToken))
			})

			ginkgo.It("should embed the user identity in the access token", func() {
				// Given
				dto := LoginDTO{
					Email:    "admin@example.com",
					Password: "correct_password",
				}

				// When
				tokens, err := service.Authenticate(dto)

				// Then
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				claims, err := service.ValidateAccessToken(tokens.AccessToken)
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(claims.UserID).To(gomega.Equal("user-2"))
				gomega.Expect(claims.Email).To(gomega.Equal("admin@example.com"))
			})
		})

		ginkgo.Context("when credentials are invalid", func() {
			ginkgo.It("should return error for unknown email", func() {
				// Given
				dto := LoginDTO{
					Email:    "nonexistent@example.com",
					Password: "any_password",
				}

				// When
				tokens, err := service.Authenticate(dto)

				// Then
				gomega.Expect(err).To(gomega.Equal(ErrInvalidCredentials))
				gomega.Expect(tokens.AccessToken).To(gomega.BeEmpty())
			})

			ginkgo.It("should return error for a wrong password", func() {
				// Given
				dto := LoginDTO{
					Email:    "staff@example.com",
					Password: "wrong_password",
				}

				// When
				tokens, err := service.Authenticate(dto)

				// Then
				gomega.Expect(err).To(gomega.Equal(ErrInvalidCredentials))
				gomega.Expect(tokens.AccessToken).To(gomega.BeEmpty())
			})
		})

		ginkgo.Context("when the account is deactivated", func() {
			ginkgo.It("should refuse the login", func() {
				// Given
				dto := LoginDTO{
					Email:    "former@example.com",
					Password: "correct_password",
				}

				// When
				tokens, err := service.Authenticate(dto)

				// Then
				gomega.Expect(err).To(gomega.Equal(ErrUserInactive))
				gomega.Expect(tokens.AccessToken).To(gomega.BeEmpty())
			})
		})

		ginkgo.Context("when input validation fails", func() {
			ginkgo.It("should return validation error for empty email", func() {
				// Given
				dto := LoginDTO{Email: "", Password: "password"}

				// When
				tokens, err := service.Authenticate(dto)

				// Then
				gomega.Expect(err).To(gomega.HaveOccurred())
				gomega.Expect(err.Error()).To(gomega.ContainSubstring("email is required"))
				gomega.Expect(tokens.AccessToken).To(gomega.BeEmpty())
			})

			ginkgo.It("should return validation error for empty password", func() {
				// Given
				dto := LoginDTO{Email: "staff@example.com", Password: ""}

				// When
				_, err := service.Authenticate(dto)

				// Then
				gomega.Expect(err).To(gomega.HaveOccurred())
				gomega.Expect(err.Error()).To(gomega.ContainSubstring("password is required"))
			})
		})

		ginkgo.Context("when repository returns error", func() {
			ginkgo.It("should return invalid credentials error", func() {
				// Given
				mockRepo.setError(errors.New("database error"))
				dto := LoginDTO{
					Email:    "staff@example.com",
					Password: "correct_password",
				}

				// When
				tokens, err := service.Authenticate(dto)

				// Then
				gomega.Expect(err).To(gomega.Equal(ErrInvalidCredentials))
				gomega.Expect(tokens.AccessToken).To(gomega.BeEmpty())
			})
		})
	})

	ginkgo.Describe("RefreshTokens", func() {
		var validRefreshToken string

		ginkgo.BeforeEach(func() {
			dto := LoginDTO{
				Email:    "staff@example.com",
				Password: "correct_password",
			}
			tokens, err := service.Authenticate(dto)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			validRefreshToken = tokens.RefreshToken
		})

		ginkgo.Context("when refresh token is valid", func() {
			ginkgo.It("should return new tokens preserving the identity", func() {
				// When
				newTokens, err := service.RefreshTokens(validRefreshToken)

				// Then
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(newTokens.AccessToken).ToNot(gomega.BeEmpty())

				claims, err := service.ValidateAccessToken(newTokens.AccessToken)
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(claims.UserID).To(gomega.Equal("user-1"))
				gomega.Expect(claims.Email).To(gomega.Equal("staff@example.com"))
			})
		})

		ginkgo.Context("when refresh token is invalid", func() {
			ginkgo.It("should return error for malformed token", func() {
				// When
				tokens, err := service.RefreshTokens("invalid.token.format")

				// Then
				gomega.Expect(err).To(gomega.HaveOccurred())
				gomega.Expect(tokens.AccessToken).To(gomega.BeEmpty())
			})

			ginkgo.It("should return error for expired token", func() {
				// Given
				expiredTokenGen := NewJWTTokenGenerator(accessSecret, refreshSecret, -1*time.Hour, -1*time.Hour)
				expiredToken, err := expiredTokenGen.GenerateRefreshToken("user-1", "staff@example.com")
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				// When
				tokens, err := service.RefreshTokens(expiredToken)

				// Then
				gomega.Expect(err).To(gomega.Or(gomega.Equal(ErrTokenExpired), gomega.Equal(ErrInvalidToken)))
				gomega.Expect(tokens.AccessToken).To(gomega.BeEmpty())
			})
		})

		ginkgo.Context("when the user was deactivated after login", func() {
			ginkgo.It("should refuse the refresh", func() {
				// Given
				mockRepo.usersByID["user-1"].IsActive = false

				// When
				tokens, err := service.RefreshTokens(validRefreshToken)

				// Then
				gomega.Expect(err).To(gomega.Equal(ErrUserInactive))
				gomega.Expect(tokens.AccessToken).To(gomega.BeEmpty())
			})
		})
	})

	ginkgo.Describe("ValidateAccessToken", func() {
		ginkgo.Context("when access token is invalid", func() {
			ginkgo.It("should return error for malformed token", func() {
				// When
				claims, err := service.ValidateAccessToken("invalid.token")

				// Then
				gomega.Expect(err).To(gomega.HaveOccurred())
				gomega.Expect(claims).To(gomega.BeNil())
			})

			ginkgo.It("should return ErrTokenExpired for an expired token", func() {
				// Given
				expiredTokenGen := NewJWTTokenGenerator(accessSecret, refreshSecret, -1*time.Hour, refreshTTL)
				expiredToken, err := expiredTokenGen.GenerateAccessToken("user-1", "staff@example.com")
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				// When
				claims, err := service.ValidateAccessToken(expiredToken)

				// Then
				gomega.Expect(err).To(gomega.Equal(ErrTokenExpired))
				gomega.Expect(claims).To(gomega.BeNil())
			})
		})
	})

	ginkgo.Describe("GetUser", func() {
		ginkgo.It("should return the user with account permissions", func() {
			// When
			user, err := service.GetUser("user-1")

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(user.Email).To(gomega.Equal("staff@example.com"))
			gomega.Expect(user.AllowedAccountIDs).To(gomega.ContainElement("acct-bank"))
			gomega.Expect(user.IsAdmin).To(gomega.BeFalse())
		})

		ginkgo.It("should return error for an unknown id", func() {
			// When
			user, err := service.GetUser("missing")

			// Then
			gomega.Expect(err).To(gomega.Equal(ErrUserNotFound))
			gomega.Expect(user).To(gomega.BeNil())
		})
	})

	ginkgo.Describe("HashPassword", func() {
		ginkgo.It("should return a hash verifiable with bcrypt", func() {
			// Given
			password := "test_password_123"

			// When
			hash, err := service.HashPassword(password)

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(hash).ToNot(gomega.Equal(password))

			err = bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
		})

		ginkgo.It("should generate different hashes for same password", func() {
			// When
			hash1, err1 := service.HashPassword("same_password")
			hash2, err2 := service.HashPassword("same_password")

			// Then
			gomega.Expect(err1).ToNot(gomega.HaveOccurred())
			gomega.Expect(err2).ToNot(gomega.HaveOccurred())
			gomega.Expect(hash1).ToNot(gomega.Equal(hash2))
		})
	})
})

var _ = ginkgo.Describe("JWTTokenGenerator", func() {
	var (
		tokenGen      *JWTTokenGenerator
		accessSecret  string        = "test-access-secret-key"
		refreshSecret string        = "test-refresh-secret-key"
		accessTTL     time.Duration = 15 * time.Minute
		refreshTTL    time.Duration = 24 * time.Hour
	)

	ginkgo.BeforeEach(func() {
		tokenGen = NewJWTTokenGenerator(accessSecret, refreshSecret, accessTTL, refreshTTL)
	})

	ginkgo.Describe("GenerateAccessToken", func() {
		ginkgo.It("should generate a token that round-trips its claims", func() {
			// When
			token, err := tokenGen.GenerateAccessToken("user-1", "staff@example.com")

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			claims, err := tokenGen.ValidateToken(token)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(claims.UserID).To(gomega.Equal("user-1"))
			gomega.Expect(claims.Email).To(gomega.Equal("staff@example.com"))
			gomega.Expect(claims.ExpiresAt.Time).To(gomega.BeTemporally("~", time.Now().Add(accessTTL), time.Minute))
		})
	})

	ginkgo.Describe("GenerateRefreshToken", func() {
		ginkgo.It("should generate a token with the refresh TTL", func() {
			// When
			token, err := tokenGen.GenerateRefreshToken("user-1", "staff@example.com")

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			claims, err := tokenGen.ValidateToken(token)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(claims.ExpiresAt.Time).To(gomega.BeTemporally("~", time.Now().Add(refreshTTL), time.Minute))
		})
	})

	ginkgo.Describe("ValidateToken", func() {
		ginkgo.It("should return error for a malformed token", func() {
			// When
			claims, err := tokenGen.ValidateToken("invalid.token.here")

			// Then
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(claims).To(gomega.BeNil())
		})

		ginkgo.It("should return error for an empty token", func() {
			// When
			claims, err := tokenGen.ValidateToken("")

			// Then
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(claims).To(gomega.BeNil())
		})

		ginkgo.It("should reject a token signed with a different secret", func() {
			// Given
			otherGen := NewJWTTokenGenerator("other-secret", "other-refresh", accessTTL, refreshTTL)
			token, err := otherGen.GenerateAccessToken("user-1", "staff@example.com")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			// When
			claims, err := tokenGen.ValidateToken(token)

			// Then
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(claims).To(gomega.BeNil())
		})
	})
})

var _ = ginkgo.Describe("LoginDTO", func() {
	ginkgo.Describe("Validate", func() {
		ginkgo.It("should accept a complete login", func() {
			// Given
			dto := LoginDTO{Email: "user@example.com", Password: "secure_password"}

			// Then
			gomega.Expect(dto.Validate()).ToNot(gomega.HaveOccurred())
		})

		ginkgo.It("should require an email", func() {
			// Given
			dto := LoginDTO{Password: "password"}

			// When
			err := dto.Validate()

			// Then
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(err.Error()).To(gomega.Equal("email is required"))
		})

		ginkgo.It("should require a password", func() {
			// Given
			dto := LoginDTO{Email: "user@example.com"}

			// When
			err := dto.Validate()

			// Then
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(err.Error()).To(gomega.Equal("password is required"))
		})
	})
})

var _ = ginkgo.Describe("RefreshTokenDTO", func() {
	ginkgo.Describe("Validate", func() {
		ginkgo.It("should accept a provided token", func() {
			// Given
			dto := RefreshTokenDTO{RefreshToken: "valid.jwt.token"}

			// Then
			gomega.Expect(dto.Validate()).ToNot(gomega.HaveOccurred())
		})

		ginkgo.It("should require the token", func() {
			// Given
			dto := RefreshTokenDTO{}

			// When
			err := dto.Validate()

			// Then
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(err.Error()).To(gomega.Equal("refresh_token is required"))
		})
	})
})
