package api

import (
	"time"

	"goban/cmd/internal/auth/session"
)

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type registerResponse struct {
	Username string `json:"username"`
}

type loginResponse struct {
	Username              string `json:"username"`
	AccessToken           string `json:"accessToken"`
	AccessTokenExpiresIn  int64  `json:"accessTokenExpiresIn"`
	RefreshToken          string `json:"refreshToken"`
	RefreshTokenExpiresIn int64  `json:"refreshTokenExpiresIn"`
}

type refreshResponse struct {
	AccessToken           string `json:"accessToken"`
	AccessTokenExpiresIn  int64  `json:"accessTokenExpiresIn"`
	RefreshToken          string `json:"refreshToken"`
	RefreshTokenExpiresIn int64  `json:"refreshTokenExpiresIn"`
}

type meResponse struct {
	Username string `json:"username"`
}

type logoutResponse struct {
	OK bool `json:"ok"`
}

func toLoginResponse(issued session.Issued, now time.Time) loginResponse {
	return loginResponse{
		Username:              issued.Username,
		AccessToken:           issued.AccessToken,
		AccessTokenExpiresIn:  issued.AccessExpiresIn(now),
		RefreshToken:          issued.RefreshToken,
		RefreshTokenExpiresIn: issued.RefreshExpiresIn(now),
	}
}

func toRefreshResponse(issued session.Issued, now time.Time) refreshResponse {
	return refreshResponse{
		AccessToken:           issued.AccessToken,
		AccessTokenExpiresIn:  issued.AccessExpiresIn(now),
		RefreshToken:          issued.RefreshToken,
		RefreshTokenExpiresIn: issued.RefreshExpiresIn(now),
	}
}
