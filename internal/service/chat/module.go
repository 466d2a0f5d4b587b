package chat

import "go.uber.org/fx"

// Module provides the chat service to Fx.
var Module = fx.Provide(NewService)
