package handlers

import (
	"net/http"

	"blogpilot/internal/threads"
	"blogpilot/internal/wordpress"
)

type wordpressConnectRequest struct {
	SiteURL     string `json:"siteUrl" validate:"required,url"`
	Username    string `json:"username" validate:"required,max=200"`
	AppPassword string `json:"appPassword" validate:"required,max=200"`
}

type threadsConnectRequest struct {
	AccessToken string `json:"accessToken" validate:"required"`
	ExpiresIn   int64  `json:"expiresIn" validate:"gte=0"`
}

func (a *App) ConnectWordPress(w http.ResponseWriter, r *http.Request) {
	var req wordpressConnectRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	integration, me, err := a.WordPress.Connect(r.Context(), a.currentUserID(r), wordpress.ConnectInput{
		SiteURL:     req.SiteURL,
		Username:    req.Username,
		AppPassword: req.AppPassword,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"wordpress": integration, "remoteUser": me})
}

func (a *App) DisconnectWordPress(w http.ResponseWriter, r *http.Request) {
	if err := a.WordPress.Disconnect(r.Context(), a.currentUserID(r)); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"connected": false})
}

func (a *App) WordPressCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := a.WordPress.Categories(r.Context(), a.currentUserID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"categories": cats})
}

func (a *App) ConnectThreads(w http.ResponseWriter, r *http.Request) {
	var req threadsConnectRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	integration, err := a.Threads.Connect(r.Context(), a.currentUserID(r), threads.ConnectInput{
		AccessToken: req.AccessToken,
		ExpiresIn:   req.ExpiresIn,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"threads": integration})
}

func (a *App) DisconnectThreads(w http.ResponseWriter, r *http.Request) {
	if err := a.Threads.Disconnect(r.Context(), a.currentUserID(r)); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"connected": false})
}
