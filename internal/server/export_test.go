package server

import (
	"context"
	"net"
)

func (a *App) ServeListener(ctx context.Context, listener net.Listener) error {
	return a.serve(ctx, listener)
}
