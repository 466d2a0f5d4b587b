package main

import (
	"go.uber.org/fx"

	"github.com/kantanworks/orderdesk/internal/app"
)

func main() {
	fx.New(app.Module).Run()
}
