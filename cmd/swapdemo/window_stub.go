//go:build linux && !cgo

package main

import (
	"context"
	"errors"
)

func (d *demo) runWindow(context.Context) error {
	return errors.New("swapdemo: window mode requires cgo (build with CGO_ENABLED=1 or run with -headless)")
}
