package marketplace

import (
	"context"
	"errors"
	"net/http"

	"carmarket/storefront/internal/model"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp struct {
		AccessToken string `json:"access_token"`
		Token       string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, credentials{email, password}, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken != "" {
		return resp.AccessToken, nil
	}
	if resp.Token != "" {
		return resp.Token, nil
	}
	return "", errors.New("login response carried no token")
}

func (c *Client) Register(ctx context.Context, email, password string) error {
	return c.do(ctx, http.MethodPost, "/auth/register", nil, credentials{email, password}, nil)
}

// Me returns the profile bound to the token in ctx.
func (c *Client) Me(ctx context.Context) (model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &user); err != nil {
		return model.User{}, err
	}
	return user, nil
}
