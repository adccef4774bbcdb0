package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"zapleads/pkg/models"
)

var errUserNotFound = errors.New("user not found")

type fakeUserRepo struct {
	byEmail map[string]*models.User
	byID    map[uuid.UUID]*models.User
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	r := &fakeUserRepo{
		byEmail: make(map[string]*models.User),
		byID:    make(map[uuid.UUID]*models.User),
	}
	for _, u := range users {
		r.byEmail[u.Email] = u
		r.byID[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := r.byEmail[email]
	if !ok {
		return nil, errUserNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, errUserNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) Create(_ context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	r.byEmail[user.Email] = user
	r.byID[user.ID] = user
	return nil
}

func (r *fakeUserRepo) Update(_ context.Context, user *models.User) error {
	r.byEmail[user.Email] = user
	r.byID[user.ID] = user
	return nil
}

func (r *fakeUserRepo) UpdateLastLogin(_ context.Context, _ uuid.UUID) error { return nil }

func activeUser(t *testing.T, svc *Service, email, password string) *models.User {
	t.Helper()
	hash, err := svc.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	u := &models.User{
		Email:    email,
		Password: hash,
		Name:     "Test",
		Role:     "user",
		IsActive: true,
	}
	u.ID = uuid.New()
	return u
}

func TestLoginAndValidateToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	svc := NewService(newFakeUserRepo())
	user := activeUser(t, svc, "ana@example.com", "s3cretpass")
	repo := newFakeUserRepo(user)
	svc = NewService(repo)

	resp, err := svc.Login(context.Background(), LoginRequest{Email: "ana@example.com", Password: "s3cretpass"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("tokens missing")
	}

	claims, err := svc.ValidateToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != user.ID || claims.Type != "access" || claims.Issuer != "zapleads" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	svc := NewService(newFakeUserRepo())
	user := activeUser(t, svc, "ana@example.com", "s3cretpass")
	svc = NewService(newFakeUserRepo(user))

	if _, err := svc.Login(context.Background(), LoginRequest{Email: "ana@example.com", Password: "wrong"}); err == nil {
		t.Fatal("want error for wrong password")
	}
}

func TestLoginDisabledUser(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	svc := NewService(newFakeUserRepo())
	user := activeUser(t, svc, "ana@example.com", "s3cretpass")
	user.IsActive = false
	svc = NewService(newFakeUserRepo(user))

	if _, err := svc.Login(context.Background(), LoginRequest{Email: "ana@example.com", Password: "s3cretpass"}); err == nil {
		t.Fatal("want error for disabled user")
	}
}

func TestRefreshTokenRejectsAccessToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	svc := NewService(newFakeUserRepo())
	user := activeUser(t, svc, "ana@example.com", "s3cretpass")
	svc = NewService(newFakeUserRepo(user))

	resp, err := svc.Login(context.Background(), LoginRequest{Email: "ana@example.com", Password: "s3cretpass"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.RefreshToken(context.Background(), resp.AccessToken); err == nil {
		t.Fatal("access token must not refresh")
	}
	if _, err := svc.RefreshToken(context.Background(), resp.RefreshToken); err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	svc := NewService(newFakeUserRepo())
	user := activeUser(t, svc, "ana@example.com", "s3cretpass")
	svc = NewService(newFakeUserRepo(user))

	_, err := svc.Register(context.Background(), RegisterRequest{
		Name:     "Other",
		Email:    "ana@example.com",
		Password: "anotherpass",
	})
	if err == nil {
		t.Fatal("want duplicate email error")
	}
}

func TestChangePassword(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	svc := NewService(newFakeUserRepo())
	user := activeUser(t, svc, "ana@example.com", "s3cretpass")
	svc = NewService(newFakeUserRepo(user))

	if err := svc.ChangePassword(context.Background(), user.ID, "s3cretpass", "newpass123"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := svc.Login(context.Background(), LoginRequest{Email: "ana@example.com", Password: "newpass123"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}
