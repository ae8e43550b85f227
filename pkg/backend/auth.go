package backend

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go/types"
)

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Validate checks the identity is a well formed UUID, which is what row-level
// policies compare user_id against.
func (u *User) Validate() error {
	if u == nil {
		return errors.New("backend: missing user")
	}

	if id, err := uuid.Parse(u.ID); err != nil || id == uuid.Nil {
		return errors.New("backend: invalid user id")
	}

	return nil
}

type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

func (s *Session) Expiry() time.Time {
	return time.Unix(s.ExpiresAt, 0)
}

func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt > 0 && !now.Before(s.Expiry())
}

func newUser(user types.User) *User {
	return &User{ID: user.ID.String(), Email: user.Email}
}

func newSession(token *types.TokenResponse) (*Session, error) {
	session := &Session{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		ExpiresIn:    int64(token.ExpiresIn),
		ExpiresAt:    token.ExpiresAt,
		RefreshToken: token.RefreshToken,
		User:         newUser(token.User),
	}

	if session.AccessToken == "" {
		return nil, errors.New("backend: session without access token")
	}

	if session.ExpiresAt == 0 && session.ExpiresIn > 0 {
		session.ExpiresAt = time.Now().Add(time.Duration(session.ExpiresIn) * time.Second).Unix()
	}

	if err := session.User.Validate(); err != nil {
		return nil, err
	}

	return session, nil
}

// SignUp creates an account. With email confirmation enabled the account stays
// pending; redirectTo is where the confirmation link lands.
func (c *Client) SignUp(ctx context.Context, email string, password string, redirectTo string) error {
	query := url.Values{}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}

	_, err := c.withContext(ctx, query).Signup(types.SignupRequest{
		Email:    email,
		Password: password,
	})

	return Wrap(err)
}

func (c *Client) SignInWithPassword(ctx context.Context, email string, password string) (*Session, error) {
	return c.token(ctx, types.TokenRequest{
		GrantType: "password",
		Email:     email,
		Password:  password,
	})
}

func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	return c.token(ctx, types.TokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: refreshToken,
	})
}

func (c *Client) token(ctx context.Context, req types.TokenRequest) (*Session, error) {
	resp, err := c.withContext(ctx, nil).Token(req)
	if err != nil {
		return nil, Wrap(err)
	}

	return newSession(resp)
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return Wrap(c.withContext(ctx, nil).WithToken(accessToken).Logout())
}

// GetUser asks the backend who accessToken belongs to, which also proves the
// token is still accepted.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	resp, err := c.withContext(ctx, nil).WithToken(accessToken).GetUser()
	if err != nil {
		return nil, Wrap(err)
	}

	user := newUser(resp.User)
	if err := user.Validate(); err != nil {
		return nil, err
	}

	return user, nil
}
