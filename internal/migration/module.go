package migration

import "go.uber.org/fx"

// Module provides the migrator to command wiring.
var Module = fx.Provide(New)
