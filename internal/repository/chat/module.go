package chat

import "go.uber.org/fx"

// Module provides the chat repository to Fx.
var Module = fx.Provide(NewRepository)
