package handler

import (
	"context"
	"html/template"

	"github.com/leca/enhance-studio/internal/config"
	"github.com/leca/enhance-studio/internal/enhancer"
	"github.com/leca/enhance-studio/internal/session"
)

// ServiceProbe reports on the enhancement service.
type ServiceProbe interface {
	Health(ctx context.Context) (*enhancer.Health, error)
	Info(ctx context.Context) (*enhancer.Info, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Sessions  *session.Controller
	Service   ServiceProbe
	Config    *config.Config
	Templates *template.Template
}
