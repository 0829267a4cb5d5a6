package goSession

import "context"

// Navigator moves the host application to a route. In a terminal or server
// host this is usually a redirect or a screen switch.
type Navigator interface {
	Navigate(ctx context.Context, path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, path string)

func (f NavigatorFunc) Navigate(ctx context.Context, path string) {
	f(ctx, path)
}

type noopNavigator struct{}

func (noopNavigator) Navigate(context.Context, string) {}
